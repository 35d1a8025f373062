package mssql

import (
	"fmt"
	"net/url"
)

// Auth methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server connection options for the commit sink.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" (default) or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// Validate checks the fields required by the chosen auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	switch c.authMethod() {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for sql auth")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("tenant_id, client_id and client_secret are required for service_principal auth")
		}
	default:
		return fmt.Errorf("unsupported auth method %q", c.AuthMethod)
	}
	return nil
}

func (c *Config) authMethod() string {
	if c.AuthMethod == "" {
		return AuthSQL
	}
	return c.AuthMethod
}

// DriverAndDSN returns the database/sql driver name and connection string.
// Service principal auth goes through the azuresql driver.
func (c *Config) DriverAndDSN() (string, string) {
	port := c.Port
	if port == 0 {
		port = DefaultPort()
	}

	query := url.Values{}
	query.Add("database", c.Database)
	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	if c.authMethod() == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", c.Host, port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		c.Host,
		port,
		query.Encode(),
	)
}
