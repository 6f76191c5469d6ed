package handler

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paidwall/internal/apperrors"
	"paidwall/internal/model"
)

type WallService interface {
	Submit(ctx context.Context, rawBody, rawAuthor string) (string, error)
	Finalize(ctx context.Context, token, payer string) (*model.Message, error)
	List(ctx context.Context) ([]model.Message, error)
	Remove(ctx context.Context, id int64, credential string) error
}

type WallHandler struct {
	log        *zap.Logger
	svc        WallService
	wallPath   string
	paidPath   string
	priceLabel string
}

func NewWallHandler(log *zap.Logger, svc WallService, basePath, priceLabel string) *WallHandler {
	return &WallHandler{
		log:        log,
		svc:        svc,
		wallPath:   joinPath(basePath, "/wall"),
		paidPath:   joinPath(basePath, "/wall-paid"),
		priceLabel: priceLabel,
	}
}

// Submit parks a message and sends the submitter through the paywalled
// confirmation URL. Validation failures are the client's problem; a storage
// failure is ours and never leaks a token.
func (h *WallHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req model.SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	token, err := h.svc.Submit(ctx, req.Message, req.Author)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyBody) ||
			errors.Is(err, apperrors.ErrInvalidBody) ||
			errors.Is(err, apperrors.ErrInvalidAuthor) {
			c.JSON(http.StatusBadRequest, ResponseWithMessage{
				Status:  StatusErr,
				Message: err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusErr,
			Message: "failed to save message",
		})
		return
	}

	c.Redirect(http.StatusFound, h.paidPath+"?pendingId="+url.QueryEscape(token))
}

// Finalize runs after the payment middleware has verified and settled the
// payment and stashed the payer identity in the context. A consumed or
// unknown token is not an error to the visitor: they are sent back to the
// wall, same as a replayed confirmation.
func (h *WallHandler) Finalize(c *gin.Context) {
	ctx := c.Request.Context()

	token := c.Query("pendingId")
	if token == "" {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: "missing pendingId",
		})
		return
	}

	payer := c.GetString(model.PayerKey)

	msg, err := h.svc.Finalize(ctx, token, payer)
	if err != nil {
		if errors.Is(err, apperrors.ErrPendingNotFound) {
			c.Redirect(http.StatusFound, h.wallPath)
			return
		}

		if errors.Is(err, apperrors.ErrNoPayer) {
			c.JSON(http.StatusPaymentRequired, ResponseWithMessage{
				Status:  StatusErr,
				Message: err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusErr,
			Message: "failed to save message",
		})
		return
	}

	h.log.Debug("message finalized", zap.Int64("id", msg.ID))

	c.Redirect(http.StatusMovedPermanently, h.wallPath)
}

// Wall renders the public HTML page: submit form plus all committed
// messages, newest first.
func (h *WallHandler) Wall(c *gin.Context) {
	ctx := c.Request.Context()

	messages, err := h.svc.List(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error retrieving messages")
		return
	}

	view := wallView{
		WallPath:   h.wallPath,
		PriceLabel: h.priceLabel,
	}

	for _, msg := range messages {
		view.Messages = append(view.Messages, wallEntry{
			// Bodies and authors were escaped at the submission boundary;
			// re-escaping here would mangle them.
			Body:      template.HTML(msg.Body),
			Author:    template.HTML(msg.Author),
			Payer:     msg.Payer,
			Timestamp: msg.Timestamp.Format(model.TimestampLayout),
		})
	}

	var buf bytes.Buffer
	if err := wallTemplate.Execute(&buf, view); err != nil {
		h.log.Error("failed to render wall page", zap.Error(err))
		c.String(http.StatusInternalServerError, "Error rendering page")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// ListMessages is the JSON read path.
func (h *WallHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	messages, err := h.svc.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusErr,
			Message: "failed to list messages",
		})
		return
	}

	if messages == nil {
		messages = []model.Message{}
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   messages,
	})
}

// DeleteMessage removes a committed message. The credential verdict comes
// first and never reveals whether the id exists.
func (h *WallHandler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: "invalid message id",
		})
		return
	}

	err = h.svc.Remove(ctx, id, c.GetHeader(AdminSecretHeader))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, ResponseWithMessage{
				Status:  StatusNotPermitted,
				Message: "invalid admin credential",
			})
		case errors.Is(err, apperrors.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, ResponseWithMessage{
				Status:  StatusErr,
				Message: "message not found",
			})
		default:
			c.JSON(http.StatusInternalServerError, ResponseWithMessage{
				Status:  StatusErr,
				Message: "failed to delete message",
			})
		}
		return
	}

	c.JSON(http.StatusOK, ResponseWithMessage{
		Status:  StatusSuccess,
		Message: "message deleted",
	})
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}

	return "/" + trimSlashes(base) + path
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}

	return s
}

type wallEntry struct {
	Body      template.HTML
	Author    template.HTML
	Payer     string
	Timestamp string
}

type wallView struct {
	WallPath   string
	PriceLabel string
	Messages   []wallEntry
}

var wallTemplate = template.Must(template.New("wall").Parse(`<html>
<head><title>Message Wall</title></head>
<body>
<h1>Post a Message</h1>
<form action="{{.WallPath}}" method="POST">
<input type="text" name="message" placeholder="Enter your message" required>
<input type="text" name="author" placeholder="anon">
<button type="submit">POST ({{.PriceLabel}})</button>
</form>
<h1>MESSAGE WALL</h1><ul>
{{- range .Messages}}
<li>{{.Body}} ({{.Timestamp}}) by {{.Author}}</li>
{{- end}}
</ul>
<script> window.onload = (e)=>{history.replaceState(null, '', '{{.WallPath}}')}</script>
</body></html>
`))
