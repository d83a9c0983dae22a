package cmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jrschumacher/folio/internal/devbackend"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
)

var utilCmd = &cobra.Command{
	Use:     "util",
	Aliases: []string{"utils"},
	Short:   "Utility commands for folio",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("Available utility commands:")
		fmt.Println("  mint-token   - Sign a development access credential")
		fmt.Println("  dev-backend  - Run a local backend that issues credentials")
		fmt.Println("  generate-jwk - Generate a JWK pair for a signing backend")
	},
}

var mintOpts struct {
	subject string
	role    string
	ttl     time.Duration
}

var utilMintTokenCmd = &cobra.Command{
	Use:   "mint-token",
	Short: "Sign a development access credential with dev_signing_secret",
	RunE: func(_ *cobra.Command, _ []string) error {
		if mintOpts.subject == "" {
			return errors.New("--subject is required")
		}
		iat := time.Now().Truncate(time.Second)
		tok, err := devbackend.MintToken([]byte(cfg.DevSigningSecret), mintOpts.subject, mintOpts.role, iat, iat.Add(mintOpts.ttl))
		if err != nil {
			return fmt.Errorf("failed to sign credential: %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

var devBackendOpts struct {
	addr  string
	users []string
}

// parseDevUser reads email:password:subject[:role].
func parseDevUser(s string) (devbackend.User, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return devbackend.User{}, fmt.Errorf("user %q: want email:password:subject[:role]", s)
	}
	u := devbackend.User{Email: parts[0], Password: parts[1], Subject: parts[2]}
	if len(parts) == 4 {
		u.Role = parts[3]
	}
	return u, nil
}

var utilDevBackendCmd = &cobra.Command{
	Use:   "dev-backend",
	Short: "Run a local backend with login, refresh, logout and /users/me",
	RunE: func(_ *cobra.Command, _ []string) error {
		b := devbackend.New(cfg.DevSigningSecret, cfg.DevAccessTTL)
		for _, entry := range devBackendOpts.users {
			u, err := parseDevUser(entry)
			if err != nil {
				return err
			}
			b.AddUser(u)
			logger.Info("Dev backend user", "email", u.Email, "subject", u.Subject, "role", u.Role)
		}

		srv := &http.Server{
			Addr:              devBackendOpts.addr,
			Handler:           b.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("Dev backend listening", "addr", srv.Addr, "access_ttl", cfg.DevAccessTTL)
		return srv.ListenAndServe()
	},
}

var utilGenerateJWKCmd = &cobra.Command{
	Use:   "generate-jwk",
	Short: "Generate a JWK pair for a signing backend",
	RunE: func(_ *cobra.Command, _ []string) error {
		privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		key, err := jwk.FromRaw(privKey)
		if err != nil {
			return fmt.Errorf("failed to create JWK: %w", err)
		}
		_ = key.Set(jwk.KeyIDKey, "folio-backend")
		_ = key.Set(jwk.AlgorithmKey, jwa.ES256)
		_ = key.Set(jwk.KeyUsageKey, "sig")

		pubKey, err := key.PublicKey()
		if err != nil {
			return fmt.Errorf("failed to get public key: %w", err)
		}

		for name, k := range map[string]jwk.Key{"jwks.public.json": pubKey, "jwks.private.json": key} {
			set := jwk.NewSet()
			_ = set.AddKey(k)
			data, err := json.MarshalIndent(set, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(name, data, 0600); err != nil {
				return err
			}
		}

		fmt.Println("JWKs written to jwks.public.json and jwks.private.json")
		return nil
	},
}

func init() {
	utilMintTokenCmd.Flags().StringVar(&mintOpts.subject, "subject", "", "subject claim")
	utilMintTokenCmd.Flags().StringVar(&mintOpts.role, "role", "", "role claim")
	utilMintTokenCmd.Flags().DurationVar(&mintOpts.ttl, "ttl", 5*time.Minute, "lifetime")

	utilDevBackendCmd.Flags().StringVar(&devBackendOpts.addr, "addr", ":4000", "listen address")
	utilDevBackendCmd.Flags().StringArrayVar(&devBackendOpts.users, "user",
		[]string{"ada@example.com:ada-pw:user-ada:admin", "bob@example.com:bob-pw:user-bob:reader"},
		"account as email:password:subject[:role], repeatable")

	rootCmd.AddCommand(utilCmd)
	utilCmd.AddCommand(utilMintTokenCmd, utilDevBackendCmd, utilGenerateJWKCmd)
}
