package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Unquoted PostgreSQL identifier; 63 bytes is NAMEDATALEN-1.
var dbNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,62}$`)

func init() {
	validate.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		return dbNameRegex.MatchString(fl.Field().String())
	})
}

// maxBodyBytes caps JSON bodies; dump bytes never travel through Decode.
const maxBodyBytes = 1 << 20

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return Validate(v)
}

// Validate runs the struct tags of v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}
