package actions

import (
	"errors"

	"github.com/phonemulator/console/internal/client"
)

func isValidation(err error) bool {
	var v *client.ValidationError
	return errors.As(err, &v)
}

func messageOr(resp *client.MessageResponse, fallback string) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return fallback
}
