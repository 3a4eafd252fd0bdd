package dedupe

import "github.com/okian/starchallenge/internal/domain/model"

// ErrDuplicate marks work rejected because its key was already recorded. It
// is model.ErrDuplicate so storage conflicts and deduper hits compare equal.
var ErrDuplicate = model.ErrDuplicate
