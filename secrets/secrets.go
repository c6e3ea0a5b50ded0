// Package secrets provides permitloader credential providers.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"go.nownabe.dev/permitloader"
)

// Keys of the secret document.
const (
	TokenKey     = "motherduck_token"
	DatabaseKey  = "motherdb"
	SchemaPrefix = "schema_"
)

// AWSSecretsManager reads credentials from a JSON secret in AWS Secrets
// Manager, like {"motherduck_token": "...", "motherdb": "...", "schema_21": "..."}.
type AWSSecretsManager struct {
	// Name is the secret name or ARN.
	Name string

	// Region is the AWS region. The SDK default chain is used if empty.
	Region string

	// Client overrides the Secrets Manager client.
	Client secretsmanageriface.SecretsManagerAPI
}

// Credentials implements permitloader.CredentialProvider.
func (s *AWSSecretsManager) Credentials(ctx context.Context) (*permitloader.Credentials, error) {
	c := s.Client
	if c == nil {
		cfg := aws.NewConfig()
		if s.Region != "" {
			cfg = cfg.WithRegion(s.Region)
		}
		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            *cfg,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to build aws session: %w", err)
		}
		c = secretsmanager.New(sess)
	}

	out, err := c.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.Name),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to get secret %s: %w", s.Name, err)
	}
	if out.SecretString == nil {
		return nil, xerrors.Errorf("secret %s has no string value", s.Name)
	}

	log.Ctx(ctx).Debug().Str("secret", s.Name).Msg("secret retrieved")

	return Parse([]byte(*out.SecretString))
}

// Parse reads credentials from a JSON secret document.
func Parse(doc []byte) (*permitloader.Credentials, error) {
	var m map[string]string
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal secret: %w", err)
	}
	return fromMap(m), nil
}

func fromMap(m map[string]string) *permitloader.Credentials {
	c := &permitloader.Credentials{
		Token:    m[TokenKey],
		Database: m[DatabaseKey],
		Schemas:  map[string]string{},
	}
	for k, v := range m {
		if strings.HasPrefix(k, SchemaPrefix) {
			c.Schemas[k] = v
		}
	}
	return c
}

// Env reads credentials from viper, which is bound to environment
// variables and .env files by the config package. Keys are the same as the
// secret document's, looked up case-insensitively.
type Env struct {
	V *viper.Viper
}

// Credentials implements permitloader.CredentialProvider.
func (e *Env) Credentials(_ context.Context) (*permitloader.Credentials, error) {
	v := e.V
	if v == nil {
		v = viper.GetViper()
	}

	m := map[string]string{}
	for _, k := range v.AllKeys() {
		m[strings.ToLower(k)] = v.GetString(k)
	}

	c := fromMap(m)
	if c.Token == "" && c.Database == "" && len(c.Schemas) == 0 {
		return nil, xerrors.New("no credentials found in environment")
	}

	return c, nil
}
