package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvClientID       = "REVCONTENT_CLIENT_ID"
	EnvClientSecret   = "REVCONTENT_CLIENT_SECRET"
	EnvSendGridAPIKey = "SENDGRID_API_KEY"
	EnvFromEmail      = "SENDGRID_SEND_FROM_EMAIL"
	EnvFromName       = "SENDGRID_SEND_FROM_NAME"
	EnvToEmail        = "SENDGRID_SEND_TO_EMAIL"
)

// ErrMissingCredentials is returned when the Revcontent client id or secret is unset.
var ErrMissingCredentials = errors.New("missing Revcontent credentials")

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already present in the environment. Missing files are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file '%s': %w", name, err)
		}
	}
	return nil
}

// LoadCredentials reads credentials from the environment. The Revcontent pair is
// required; the SendGrid values are checked later, when the report is sent.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{
		ClientID:       strings.TrimSpace(os.Getenv(EnvClientID)),
		ClientSecret:   strings.TrimSpace(os.Getenv(EnvClientSecret)),
		SendGridAPIKey: os.Getenv(EnvSendGridAPIKey),
		FromEmail:      os.Getenv(EnvFromEmail),
		FromName:       os.Getenv(EnvFromName),
		ToEmail:        os.Getenv(EnvToEmail),
	}

	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if creds.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s environment variable(s) required", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return creds, nil
}
