package reconcile

import "errors"

// Sentinel errors. The messages of the first four are the literal failure
// replies of the sync endpoints.
var (
	ErrMissingKey      = errors.New("aquariumKey not found")
	ErrNoFolderID      = errors.New("No folderId provided") //nolint:staticcheck // reply text
	ErrProjectNotFound = errors.New("Project not found")    //nolint:staticcheck // reply text
	ErrNotPaired       = errors.New("aquariumProjectKey not found")
	ErrSave            = errors.New("entity not saved")
)

// Reply maps a reconcile result to the string returned by the sync
// endpoints: the entity id on success, the sentinel text for a rejected
// record, an empty string when persisting failed.
func Reply(id string, err error) string {
	switch {
	case err == nil:
		return id
	case errors.Is(err, ErrMissingKey):
		return ErrMissingKey.Error()
	case errors.Is(err, ErrNoFolderID):
		return ErrNoFolderID.Error()
	case errors.Is(err, ErrProjectNotFound):
		return ErrProjectNotFound.Error()
	case errors.Is(err, ErrNotPaired):
		return ErrNotPaired.Error()
	default:
		return ""
	}
}

// ParseReply is the inverse of Reply for clients of the sync endpoints.
func ParseReply(reply string) (string, error) {
	switch reply {
	case "":
		return "", ErrSave
	case ErrMissingKey.Error():
		return "", ErrMissingKey
	case ErrNoFolderID.Error():
		return "", ErrNoFolderID
	case ErrProjectNotFound.Error():
		return "", ErrProjectNotFound
	case ErrNotPaired.Error():
		return "", ErrNotPaired
	default:
		return reply, nil
	}
}
