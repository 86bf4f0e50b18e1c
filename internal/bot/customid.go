package bot

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
)

const customIDPrefix = "coffee"

// Discord limits custom ids to 100 characters.
const maxCustomIDLen = 100

const (
	actionAdd     = "add"
	actionRemove  = "rm"
	actionReset   = "reset"
	actionArchive = "arch"
	actionPrev    = "prev"
	actionNext    = "next"
	actionSubmit  = "submit"
	actionCancel  = "cancel"
	actionLeave   = "leave"
	actionNoop    = "noop"
)

// encodeCustomID builds "coffee:<session>:<action>[:<member>]". Members are
// carried by person id so the id stays under the limit for any display name.
func encodeCustomID(sessionID uuid.UUID, action string, member uuid.UUID) string {
	id := customIDPrefix + ":" + sessionID.String() + ":" + action
	if member != uuid.Nil {
		id += ":" + member.String()
	}
	return id
}

// decodeCustomID parses a button id into the session it targets and the intent.
// A nil intent with a nil error means the button carries no action.
func decodeCustomID(customID string) (uuid.UUID, coffee.Intent, error) {
	if len(customID) > maxCustomIDLen {
		return uuid.Nil, nil, fmt.Errorf("custom id too long: %d", len(customID))
	}
	parts := strings.SplitN(customID, ":", 4)
	if len(parts) < 3 || parts[0] != customIDPrefix {
		return uuid.Nil, nil, fmt.Errorf("not a coffee button: %q", customID)
	}
	sessionID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("bad session id in %q: %w", customID, err)
	}

	member := func() (coffee.MemberRef, error) {
		if len(parts) < 4 {
			return coffee.MemberRef{}, fmt.Errorf("missing member in %q", customID)
		}
		id, err := uuid.Parse(parts[3])
		if err != nil {
			return coffee.MemberRef{}, fmt.Errorf("bad member id in %q: %w", customID, err)
		}
		return coffee.MemberRef{MemberID: id}, nil
	}

	switch parts[2] {
	case actionAdd, actionRemove, actionReset:
		ref, err := member()
		if err != nil {
			return uuid.Nil, nil, err
		}
		switch parts[2] {
		case actionAdd:
			return sessionID, coffee.AddClaim(ref), nil
		case actionRemove:
			return sessionID, coffee.RemoveClaim(ref), nil
		default:
			return sessionID, coffee.ResetClaim(ref), nil
		}
	case actionArchive:
		return sessionID, coffee.ShowArchived{}, nil
	case actionPrev:
		return sessionID, coffee.Paginate{Dir: coffee.PagePrev}, nil
	case actionNext:
		return sessionID, coffee.Paginate{Dir: coffee.PageNext}, nil
	case actionSubmit:
		return sessionID, coffee.Submit{}, nil
	case actionCancel:
		return sessionID, coffee.Cancel{}, nil
	case actionLeave:
		return sessionID, coffee.Leave{}, nil
	case actionNoop:
		return sessionID, nil, nil
	default:
		return uuid.Nil, nil, fmt.Errorf("unknown action %q", parts[2])
	}
}
