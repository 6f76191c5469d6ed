package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	StatusErr          = "error"
	StatusSuccess      = "success"
	StatusNotAvailable = "not available"
	StatusNotPermitted = "not permitted"
	StatusOK           = "ok"
)

const AdminSecretHeader = "X-Admin-Secret"

type ResponseWithData struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type ResponseWithMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NoMethod(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, ResponseWithMessage{
		Status:  StatusNotAvailable,
		Message: "method not allowed on this endpoint",
	})
}

func NoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, ResponseWithMessage{
		Status:  StatusNotAvailable,
		Message: "page not found",
	})
}
