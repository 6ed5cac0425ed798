// Package respond writes the JSON envelopes shared by every route.
package respond

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"pulsemetrics/internal/apperr"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Success bool                `json:"success"`
	Error   apperr.Kind         `json:"error"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

// Writer renders results and errors. In production, 5xx bodies carry a
// generic message only; the detail goes to the log.
type Writer struct {
	production bool
	log        *zap.Logger
}

func New(production bool, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{production: production, log: log}
}

// JSON writes {"success":true,"data":data} with the given status.
func (w *Writer) JSON(ctx *fasthttp.RequestCtx, status int, data any) {
	body, err := json.Marshal(envelope{Success: true, Data: data})
	if err != nil {
		w.Error(ctx, apperr.Unknown(err))
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// OK is JSON with status 200.
func (w *Writer) OK(ctx *fasthttp.RequestCtx, data any) {
	w.JSON(ctx, fasthttp.StatusOK, data)
}

// Error maps err onto its status code and writes the error body.
func (w *Writer) Error(ctx *fasthttp.RequestCtx, err error) {
	e := apperr.As(err)
	status := apperr.HTTPStatus(e.Kind)
	msg := e.Message

	if status >= fasthttp.StatusInternalServerError {
		w.log.Error("request failed",
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
		switch {
		case w.production && e.Kind == apperr.KindUpstream:
			msg = "a dependency is unavailable"
		case w.production:
			msg = "internal error"
		case e.Err != nil:
			msg = e.Error()
		}
	}

	body, _ := json.Marshal(errorBody{Error: e.Kind, Message: msg, Fields: e.Fields})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
