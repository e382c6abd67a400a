// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import flerr "github.com/ashoksr/vrflow/internal/errors"

var errInvalidCollaborators = flerr.New(flerr.KindInternal, "flow: all collaborators are required")
