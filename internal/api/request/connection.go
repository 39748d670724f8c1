package request

import "github.com/edvin/pgbackup/internal/model"

type CreateConnection struct {
	Name                    string `json:"name" validate:"required,max=255"`
	Host                    string `json:"db_host" validate:"omitempty,hostname_rfc1123|ip"`
	Port                    int    `json:"db_port" validate:"omitempty,min=1,max=65535"`
	DBName                  string `json:"db_name" validate:"required,dbname"`
	User                    string `json:"db_user" validate:"required"`
	Password                string `json:"db_password"`
	SSLMode                 string `json:"db_ssl" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	SSLCertificate          string `json:"ssl_certificate"`
	SSLClientCertificate    string `json:"ssl_client_certificate" validate:"required_with=SSLClientCertificateKey"`
	SSLClientCertificateKey string `json:"ssl_client_certificate_key" validate:"required_with=SSLClientCertificate"`
}

func (c CreateConnection) Connection(id string) *model.Connection {
	return &model.Connection{
		ID:                      id,
		Name:                    c.Name,
		Host:                    c.Host,
		Port:                    c.Port,
		DBName:                  c.DBName,
		User:                    c.User,
		Password:                c.Password,
		SSLMode:                 c.SSLMode,
		SSLCertificate:          c.SSLCertificate,
		SSLClientCertificate:    c.SSLClientCertificate,
		SSLClientCertificateKey: c.SSLClientCertificateKey,
	}
}

type CreateCredential struct {
	Type      string `json:"type" validate:"required,oneof=s3"`
	Bucket    string `json:"bucket" validate:"required,min=3,max=63"`
	Region    string `json:"region" validate:"required"`
	KeyID     string `json:"key_id" validate:"required"`
	KeySecret string `json:"key_secret" validate:"required"`
	Endpoint  string `json:"endpoint" validate:"omitempty,url"`
}

func (c CreateCredential) Credential() *model.Credential {
	return &model.Credential{
		Type:      c.Type,
		Bucket:    c.Bucket,
		Region:    c.Region,
		KeyID:     c.KeyID,
		KeySecret: c.KeySecret,
		Endpoint:  c.Endpoint,
	}
}
