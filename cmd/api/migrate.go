package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			logger.Info("schema migrated")

			if !seed {
				return nil
			}
			ctx := cmd.Context()
			if err := repository.NewProductRepository(db).Seed(ctx); err != nil {
				return fmt.Errorf("seed products: %w", err)
			}
			if err := repository.NewShippingRateRepository(db).Seed(ctx); err != nil {
				return fmt.Errorf("seed shipping rates: %w", err)
			}
			logger.Info("seed data loaded")
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "load demo products and shipping rates")
	return cmd
}

// paymentMethodOptions collects one payment method from flags. Every run
// stores the full row, so omitted credentials are cleared.
type paymentMethodOptions struct {
	pm       model.PaymentMethod
	code     string
	mode     string
	inactive bool
}

func (o *paymentMethodOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.UintVar(&o.pm.ID, "id", 0, "payment method id")
	f.StringVar(&o.pm.Name, "name", "", "display name")
	f.StringVar(&o.code, "code", "", "provider code (MIDTRANS, PAYPAL, BRAINTREE)")
	f.StringVar(&o.mode, "mode", string(model.ModeSandbox), "sandbox or production")
	f.BoolVar(&o.inactive, "inactive", false, "store the method disabled")
	f.StringVar(&o.pm.ServerKey, "server-key", "", "Midtrans server key")
	f.StringVar(&o.pm.ClientKey, "client-key", "", "Midtrans client key")
	f.StringVar(&o.pm.ClientID, "client-id", "", "PayPal client id")
	f.StringVar(&o.pm.ClientSecret, "client-secret", "", "PayPal client secret")
	f.StringVar(&o.pm.WebhookID, "webhook-id", "", "PayPal webhook id")
	f.StringVar(&o.pm.MerchantID, "merchant-id", "", "Braintree merchant id")
	f.StringVar(&o.pm.PublicKey, "public-key", "", "Braintree public key")
	f.StringVar(&o.pm.PrivateKey, "private-key", "", "Braintree private key")
	f.StringVar(&o.pm.ReturnURL, "return-url", "", "where the buyer lands after paying (empty uses the provider default)")
	f.StringVar(&o.pm.CancelURL, "cancel-url", "", "where the buyer lands after abandoning payment")
}

func (o *paymentMethodOptions) paymentMethod() (*model.PaymentMethod, error) {
	pm := o.pm
	if pm.ID == 0 {
		return nil, fmt.Errorf("--id is required")
	}
	pm.Code = model.PaymentProvider(strings.ToUpper(o.code))
	switch pm.Code {
	case model.ProviderMidtrans, model.ProviderPaypal, model.ProviderBraintree:
	default:
		return nil, fmt.Errorf("unsupported provider code %q", o.code)
	}
	pm.Mode = model.PaymentMode(strings.ToLower(o.mode))
	if pm.Mode != model.ModeSandbox && pm.Mode != model.ModeProduction {
		return nil, fmt.Errorf("unsupported mode %q", o.mode)
	}
	for flag, raw := range map[string]string{"--return-url": pm.ReturnURL, "--cancel-url": pm.CancelURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%s must be an absolute http(s) URL, got %q", flag, raw)
		}
	}
	pm.IsActive = !o.inactive
	return &pm, nil
}

// paymentMethodCmd stores gateway credentials on a payment method row.
// Credentials are per payment method, never process-wide config.
func paymentMethodCmd() *cobra.Command {
	opts := &paymentMethodOptions{}

	cmd := &cobra.Command{
		Use:   "payment-method",
		Short: "Create or update a payment method and its gateway credentials",
		Example: `  storefront payment-method --id 1 --name "Midtrans" --code MIDTRANS --mode sandbox --server-key SB-Mid-server-xxx \
      --return-url https://shop.example/orders/finish
  storefront payment-method --id 2 --name "PayPal" --code PAYPAL --client-id xxx --client-secret yyy --webhook-id zzz \
      --return-url https://api.example/api/paypal/success --cancel-url https://shop.example/cart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := opts.paymentMethod()
			if err != nil {
				return err
			}

			_, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := repository.NewPaymentMethodRepository(db).Upsert(cmd.Context(), pm); err != nil {
				return fmt.Errorf("upsert payment method: %w", err)
			}
			logger.Info("payment method saved", "payment_method_id", pm.ID, "provider", pm.Code, "mode", pm.Mode)
			return nil
		},
	}

	opts.bind(cmd)
	return cmd
}

// tokenCmd issues a bearer token for local testing against the API.
func tokenCmd() *cobra.Command {
	var userID uint
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			r := model.Role(strings.ToUpper(role))
			switch r {
			case model.RoleOwner, model.RoleAdmin, model.RoleUser:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.Auth.JWTSecret, userID, r, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "OWNER, ADMIN or USER")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
