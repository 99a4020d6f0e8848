package handler

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) registration(c *gin.Context) {
	req, ok := h.flowRequest(c)
	if !ok {
		return
	}

	resp, err := h.controller.Registration(c.Request.Context(), req, c.Query("key"))
	h.respond(c, resp, err)
}

func (h *Handler) registrationSuccess(c *gin.Context) {
	req, ok := h.flowRequest(c)
	if !ok {
		return
	}

	resp, err := h.controller.RegistrationSuccess(c.Request.Context(), req)
	h.respond(c, resp, err)
}
