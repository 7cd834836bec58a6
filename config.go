package session

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds session options.
type Config interface {
	// GetBaseURL is the identity service root, e.g. https://api.example.com.
	GetBaseURL() string
	// GetOrigin scopes credential storage; empty means derive from the base URL.
	GetOrigin() string
	// GetLoginPath is where anonymous navigations are redirected.
	GetLoginPath() string
	// GetReturnToParam carries the originally requested path to the login surface.
	GetReturnToParam() string
	// GetPublicRoutes lists path prefixes exempt from the authentication gate.
	GetPublicRoutes() []string
}

// SimpleConfig is a literal-friendly Config implementation.
type SimpleConfig struct {
	BaseURL       string   `json:"base_url"`
	Origin        string   `json:"origin,omitempty"`
	LoginPath     string   `json:"login_path,omitempty"`
	ReturnToParam string   `json:"return_to_param,omitempty"`
	PublicRoutes  []string `json:"public_routes,omitempty"`
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetBaseURL() string { return c.BaseURL }

func (c SimpleConfig) GetOrigin() string { return c.Origin }

func (c SimpleConfig) GetLoginPath() string {
	if c.LoginPath == "" {
		return "/login"
	}
	return c.LoginPath
}

func (c SimpleConfig) GetReturnToParam() string {
	if c.ReturnToParam == "" {
		return "next"
	}
	return c.ReturnToParam
}

func (c SimpleConfig) GetPublicRoutes() []string { return c.PublicRoutes }

// Validate will run validation rules
func (c SimpleConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.LoginPath, validation.Match(pathPrefixPattern)),
	)
}

// login paths are app-local, they must be rooted
var pathPrefixPattern = regexp.MustCompile(`^/`)

func validateConfig(cfg Config) error {
	if cfg == nil {
		return goerrors.New("session config is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if cfg.GetBaseURL() == "" {
		return goerrors.New("session config needs a base URL", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
