package model

import "time"

// Connection holds what is needed to reach a source or target database.
type Connection struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"db_host"`
	Port     int    `json:"db_port"`
	DBName   string `json:"db_name"`
	User     string `json:"db_user"`
	Password string `json:"-"`
	SSLMode  string `json:"db_ssl,omitempty"`

	// PEM encoded TLS materials; written to files before a subprocess runs.
	SSLCertificate          string `json:"-"`
	SSLClientCertificate    string `json:"-"`
	SSLClientCertificateKey string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// HostOrDefault falls back to localhost.
func (c Connection) HostOrDefault() string {
	if c.Host == "" {
		return "localhost"
	}
	return c.Host
}

// PortOrDefault falls back to 5432.
func (c Connection) PortOrDefault() int {
	if c.Port == 0 {
		return 5432
	}
	return c.Port
}

// Credential resolves to an object storage client.
type Credential struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Bucket    string    `json:"bucket"`
	Region    string    `json:"region"`
	KeyID     string    `json:"key_id"`
	KeySecret string    `json:"-"`
	Endpoint  string    `json:"endpoint,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const CredentialTypeS3 = "s3"
