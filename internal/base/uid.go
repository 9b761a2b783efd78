package base

import "regexp"

// UIDMatcher validates the short external identifiers handed out for
// conversations: alphanumeric with interior dashes, 2 to 32 characters.
var UIDMatcher = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,30}[a-zA-Z0-9])?$`)
