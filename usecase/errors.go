package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/asistente-auditoria/widget/domain"
)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// describeFailure names a transport failure for the person reading the chat.
func describeFailure(err error) string {
	if status, ok := upstreamStatusCode(err); ok {
		return fmt.Sprintf("el servidor respondió con el estado HTTP %d", status)
	}
	switch {
	case errors.Is(err, domain.ErrMalformedResponse):
		return "la respuesta del servidor no es válida"
	case errors.Is(err, context.Canceled):
		return "la solicitud fue cancelada"
	case errors.Is(err, context.DeadlineExceeded):
		return "el servidor tardó demasiado en responder"
	}
	return "no se pudo conectar con el servidor"
}
