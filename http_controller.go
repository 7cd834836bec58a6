package session

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// SessionControllerRoutes are the paths the controller mounts.
type SessionControllerRoutes struct {
	Login  string
	Logout string
}

// SessionControllerViews are the template names the controller renders.
type SessionControllerViews struct {
	Login string
}

// SessionController serves the login surface for server-rendered hosts: it
// renders the login view, drives Manager.Login from the posted form, and
// redirects back to the return target on success.
type SessionController struct {
	Debug           bool
	Logger          Logger
	Manager         *Manager
	Routes          *SessionControllerRoutes
	Views           *SessionControllerViews
	ReturnToParam   string
	DefaultRedirect string
}

type SessionControllerOption func(*SessionController) *SessionController

// WithControllerManager sets the session Manager the controller drives.
func WithControllerManager(manager *Manager) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Manager = manager
		return c
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerReturnToParam overrides the query parameter carrying the
// return target.
func WithControllerReturnToParam(param string) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if param != "" {
			c.ReturnToParam = param
		}
		return c
	}
}

func NewSessionController(opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Logger: defLogger{},
		Routes: &SessionControllerRoutes{
			Login:  "/login",
			Logout: "/logout",
		},
		Views: &SessionControllerViews{
			Login: "login",
		},
		ReturnToParam:   "next",
		DefaultRedirect: "/",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in session controller...")
	}

	return c
}

// RegisterSessionRoutes mounts the login surface on app.
func RegisterSessionRoutes[T any](app router.Router[T], opts ...SessionControllerOption) {
	controller := NewSessionController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.
		Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")
}

func (a *SessionController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
		"next":   ctx.Query(a.ReturnToParam, ""),
	})
}

// LoginRequest payload
type LoginRequest struct {
	Username   string `form:"username" json:"username"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *SessionController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login attempt: %s", print.MaybePrettyJSON(map[string]any{
			"username": payload.Username,
		}))
	}

	if ok := a.Manager.Login(ctx.Context(), payload.Username, payload.Password); !ok {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record": payload,
			"errors": map[string]string{
				"authentication": a.Manager.LastError(),
			},
		})
	}

	redirect := ctx.Query(a.ReturnToParam, a.DefaultRedirect)
	if redirect == "" {
		redirect = a.DefaultRedirect
	}

	return ctx.Redirect(redirect, fiber.StatusSeeOther)
}

func (a *SessionController) LogOut(ctx router.Context) error {
	a.Manager.Logout(ctx.Context())
	return ctx.Redirect(a.Routes.Login, fiber.StatusTemporaryRedirect)
}

// FormatValidationErrorToMap flattens ozzo validation errors into per-field
// messages for view rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
