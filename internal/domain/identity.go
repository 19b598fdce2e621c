package domain

// Identity is the Discord user behind a session, fetched once at login.
type Identity struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar,omitempty"`
}

// Tag returns the familiar "name#discriminator" form.
func (i Identity) Tag() string {
	if i.Discriminator == "" {
		return i.Username + "#0"
	}
	return i.Username + "#" + i.Discriminator
}
