package handlers

import (
	"fmt"
	"strings"

	"github.com/anax-commerce/commerce-service/internal/domain"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	localsUserID = "user_id"
	localsRole   = "role"
)

// Claims are the JWT claims issued by the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate accepts HS256 bearer tokens signed with secret and stores the
// caller identity in the request locals.
func Authenticate(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return sharedHTTP.UnauthorizedResponse(c, "Missing token")
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			return sharedHTTP.UnauthorizedResponse(c, "Invalid token format")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return sharedHTTP.UnauthorizedResponse(c, "Invalid token")
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			return sharedHTTP.UnauthorizedResponse(c, "Invalid token subject")
		}

		c.Locals(localsUserID, userID)
		c.Locals(localsRole, claims.Role)
		return c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if current, _ := c.Locals(localsRole).(string); current != role {
			return sharedHTTP.ForbiddenResponse(c, "Insufficient permissions")
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) uuid.UUID {
	userID, _ := c.Locals(localsUserID).(uuid.UUID)
	return userID
}

func pathID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Params(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Invalid(domain.ErrValidation, "path", name, fmt.Sprintf("%q is not a valid id", raw))
	}
	return id, nil
}
