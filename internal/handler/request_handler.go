package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/middleware"
	"budgetflow/internal/model"
	"budgetflow/internal/policy"
	"budgetflow/internal/service"
	"budgetflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RequestHandler struct {
	requestService service.RequestService
}

func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.GET("", middleware.RequireAuth(), h.ListRequests)
		requests.POST("", middleware.RequireAuth(), h.CreateRequest)
		requests.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin), h.ApproveRequest)
		requests.PUT("/:id/reject", middleware.RequireRole(model.RoleAdmin), h.RejectRequest)
		requests.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteRequest)
		requests.POST("/:id/transfer-proof", middleware.RequireRole(model.RoleAdmin), h.UploadTransferProof)
	}
}

// openFormFile returns the uploaded file under the given form field, or nil
// when the field is absent.
func openFormFile(c *gin.Context, field string) (string, io.ReadCloser, error) {
	header, err := c.FormFile(field)
	if err != nil {
		// Absent field; required-ness is the caller's call
		return "", nil, nil
	}
	f, err := header.Open()
	if err != nil {
		return "", nil, fmt.Errorf("%w: open upload: %v", apperrors.ErrStorage, err)
	}
	return header.Filename, f, nil
}

// ListRequests handles GET /api/requests
// @Summary      List budget requests
// @Description  Admins see every request, employees only their own; newest first
// @Tags         requests
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RequestResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return
	}

	requests, err := h.requestService.List(c.Request.Context(), ident)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, requests))
}

// CreateRequest handles POST /api/requests (multipart form)
// @Summary      Submit a budget request
// @Description  Creates a pending request with title, description, amount, and an optional supporting document
// @Tags         requests
// @Accept       multipart/form-data
// @Produce      json
// @Param        title        formData  string  true   "Title"
// @Param        description  formData  string  true   "Description"
// @Param        amount       formData  string  true   "Amount (decimal)"
// @Param        document     formData  file    false  "Supporting document"
// @Success      201  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
		return
	}

	in := service.CreateRequestInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Amount:      c.PostForm("amount"),
	}

	fileName, file, err := openFormFile(c, "document")
	if err != nil {
		response.FromError(c, err)
		return
	}
	var reader io.Reader
	if file != nil {
		defer file.Close()
		reader = file
	}

	req, err := h.requestService.Create(c.Request.Context(), ident, in, fileName, reader)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, req))
}

// ApproveRequest handles PUT /api/requests/:id/approve
// @Summary      Approve a pending request
// @Description  Moves a pending request to APPROVED; repeating the call is a no-op
// @Tags         requests
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	h.decideRequest(c, h.requestService.Approve)
}

// RejectRequest handles PUT /api/requests/:id/reject
// @Summary      Reject a pending request
// @Description  Moves a pending request to REJECTED; repeating the call is a no-op
// @Tags         requests
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	h.decideRequest(c, h.requestService.Reject)
}

func (h *RequestHandler) decideRequest(c *gin.Context, decide func(ctx context.Context, actor policy.Identity, id uuid.UUID) (*service.RequestResponse, error)) {
	ident, _ := middleware.IdentityFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, fmt.Errorf("%w: invalid request id", apperrors.ErrValidation))
		return
	}

	req, err := decide(c.Request.Context(), ident, id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// DeleteRequest handles DELETE /api/requests/:id
// @Summary      Delete a request
// @Description  Removes the request and releases its attachments
// @Tags         requests
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	ident, _ := middleware.IdentityFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, fmt.Errorf("%w: invalid request id", apperrors.ErrValidation))
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), ident, id); err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Request deleted successfully"))
}

// UploadTransferProof handles POST /api/requests/:id/transfer-proof
// @Summary      Attach a transfer proof
// @Description  Stores the admin's proof-of-transfer document on the request
// @Tags         requests
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true  "Request ID"
// @Param        proof  formData  file    true  "Transfer proof document"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/transfer-proof [post]
func (h *RequestHandler) UploadTransferProof(c *gin.Context) {
	ident, _ := middleware.IdentityFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.FromError(c, fmt.Errorf("%w: invalid request id", apperrors.ErrValidation))
		return
	}

	fileName, file, err := openFormFile(c, "proof")
	if err != nil {
		response.FromError(c, err)
		return
	}
	if file == nil {
		response.FromError(c, fmt.Errorf("%w: transfer proof file is required", apperrors.ErrValidation))
		return
	}
	defer file.Close()

	req, err := h.requestService.AttachTransferProof(c.Request.Context(), ident, id, fileName, file)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}
