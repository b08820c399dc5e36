package catalog

import (
	"github.com/angelmondragon/storyblok-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

func invalidPayload(eventType enums.OutboxEventType, msg string) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidData, "%s: %s", eventType, msg)
}
