package favorites

// Backend selects the source of truth for one operation: the local cache
// when there is no user, the remote store of that user otherwise.
type Backend struct {
	userID string
}

func Local() Backend {
	return Backend{}
}

// Remote returns the backend for userID. An empty id yields Local.
func Remote(userID string) Backend {
	return Backend{userID: userID}
}

func (b Backend) IsRemote() bool {
	return b.userID != ""
}

func (b Backend) UserID() string {
	return b.userID
}

func (b Backend) String() string {
	if b.IsRemote() {
		return "remote:" + b.userID
	}
	return "local"
}
