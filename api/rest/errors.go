package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/game/world"
)

// statusFor maps world and terrain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, world.ErrActorNotFound), errors.Is(err, world.ErrMapNotFound):
		return http.StatusNotFound
	case errors.Is(err, world.ErrOffMap), errors.Is(err, terrain.ErrOutOfBounds),
		errors.Is(err, world.ErrBadItem):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrNoPickaxe), errors.Is(err, terrain.ErrNotMineable),
		errors.Is(err, world.ErrMapExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
