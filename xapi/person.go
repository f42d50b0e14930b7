package xapi

// Person is the combined view of an agent returned by the agents resource.
type Person struct {
	ObjectType  string    `json:"objectType"`
	Name        []string  `json:"name,omitempty"`
	Mbox        []string  `json:"mbox,omitempty"`
	MboxSHA1Sum []string  `json:"mbox_sha1sum,omitempty"`
	OpenID      []string  `json:"openid,omitempty"`
	Account     []Account `json:"account,omitempty"`
}

// PersonFor returns the Person view of a single agent.
func PersonFor(a Actor) Person {
	p := Person{ObjectType: "Person"}
	if a.Name != "" {
		p.Name = []string{a.Name}
	}
	if a.Mailbox != "" {
		p.Mbox = []string{mailtoPrefix + a.Mailbox}
	}
	if a.MailboxSHA1 != "" {
		p.MboxSHA1Sum = []string{a.MailboxSHA1}
	}
	if a.OpenID != "" {
		p.OpenID = []string{a.OpenID}
	}
	if a.Account != nil {
		p.Account = []Account{*a.Account}
	}
	return p
}

// About describes the versions an LRS supports.
type About struct {
	Version    []string       `json:"version"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Supports reports whether the LRS lists version v.
func (a About) Supports(v string) bool {
	for _, have := range a.Version {
		if have == v {
			return true
		}
	}
	return false
}
