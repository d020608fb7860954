package http

import "github.com/labstack/echo/v4"

// Handler registers its routes under the API group.
type Handler interface {
	RegisterRoutes(g *echo.Group)
}
