package cli

import (
	"errors"
	"fmt"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// describeError turns an error into the message shown to the operator.
// Each failure kind of a settings update gets its own wording.
func describeError(err error) string {
	var op *models.OpError
	path := ""
	if errors.As(err, &op) {
		path = op.Path
	}

	switch {
	case errors.Is(err, models.ErrBackup):
		return fmt.Sprintf("Error: could not back up %s, so nothing was changed.\n  %v", path, err)
	case errors.Is(err, models.ErrWrite):
		return fmt.Sprintf("Error: could not write %s. Restore it from the backup if it is damaged.\n  %v", path, err)
	case errors.Is(err, models.ErrVerification):
		return fmt.Sprintf("Warning: %s was written but the new values could not be confirmed. Check the file by hand.\n  %v", path, err)
	case errors.Is(err, models.ErrRead):
		return fmt.Sprintf("Error: could not read %s. Check the path and its permissions.\n  %v", path, err)
	default:
		return "Error: " + err.Error()
	}
}
