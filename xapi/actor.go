package xapi

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ActorType distinguishes a single agent from a group.
type ActorType string

const (
	AgentType ActorType = "Agent"
	GroupType ActorType = "Group"
)

// IFIKind selects which inverse functional identifier an actor serializes.
type IFIKind int

const (
	NoIdentifier IFIKind = iota
	Mailbox
	MailboxSHA1
	OpenID
	AccountID
)

func (k IFIKind) String() string {
	switch k {
	case Mailbox:
		return "mbox"
	case MailboxSHA1:
		return "mbox_sha1sum"
	case OpenID:
		return "openid"
	case AccountID:
		return "account"
	default:
		return "none"
	}
}

const mailtoPrefix = "mailto:"

// Account identifies an actor by a name on a system.
type Account struct {
	HomePage string `json:"homePage"`
	Name     string `json:"name"`
}

// Actor is an Agent or Group. Every identifier slot keeps its value; only the
// slot selected by Kind is serialized, so switching Kind back restores the
// earlier identifier.
type Actor struct {
	Name string
	Type ActorType
	Kind IFIKind

	// Mailbox holds the address without the mailto: scheme.
	Mailbox     string
	MailboxSHA1 string
	OpenID      string
	Account     *Account

	Members []Actor
}

// AgentFromMailbox returns an agent identified by email address.
func AgentFromMailbox(name, email string) Actor {
	return Actor{Name: name, Type: AgentType, Kind: Mailbox, Mailbox: strings.TrimPrefix(email, mailtoPrefix)}
}

// AgentFromMailboxSHA1 returns an agent identified by a mailbox hash.
func AgentFromMailboxSHA1(name, sum string) Actor {
	return Actor{Name: name, Type: AgentType, Kind: MailboxSHA1, MailboxSHA1: sum}
}

// AgentFromOpenID returns an agent identified by an OpenID URI.
func AgentFromOpenID(name, openID string) Actor {
	return Actor{Name: name, Type: AgentType, Kind: OpenID, OpenID: openID}
}

// AgentFromAccount returns an agent identified by an account on homePage.
func AgentFromAccount(name, homePage, accountName string) Actor {
	return Actor{Name: name, Type: AgentType, Kind: AccountID, Account: &Account{HomePage: homePage, Name: accountName}}
}

// AnonymousGroup returns a group identified only by its members.
func AnonymousGroup(name string, members ...Actor) Actor {
	return Actor{Name: name, Type: GroupType, Members: cloneActors(members)}
}

// MailboxSHA1Sum returns the hex SHA-1 of the mailto IRI for email.
func MailboxSHA1Sum(email string) string {
	sum := sha1.Sum([]byte(mailtoPrefix + strings.TrimPrefix(email, mailtoPrefix)))
	return hex.EncodeToString(sum[:])
}

func (a Actor) ObjectType() string {
	if a.Type == GroupType {
		return string(GroupType)
	}
	return string(AgentType)
}

func (Actor) isObject() {}

// IsGroup reports whether the actor serializes as a Group.
func (a Actor) IsGroup() bool { return a.Type == GroupType }

// Identifier returns the value of the active identifier slot.
func (a Actor) Identifier() string {
	switch a.Kind {
	case Mailbox:
		if a.Mailbox == "" {
			return ""
		}
		return mailtoPrefix + a.Mailbox
	case MailboxSHA1:
		return a.MailboxSHA1
	case OpenID:
		return a.OpenID
	case AccountID:
		if a.Account == nil {
			return ""
		}
		return a.Account.HomePage + "#" + a.Account.Name
	}
	return ""
}

// WithKind returns a copy that serializes the given identifier slot.
func (a Actor) WithKind(kind IFIKind) Actor {
	out := a.clone()
	out.Kind = kind
	return out
}

// WithMailbox stores email and makes it the active identifier.
func (a Actor) WithMailbox(email string) Actor {
	out := a.clone()
	out.Mailbox = strings.TrimPrefix(email, mailtoPrefix)
	out.Kind = Mailbox
	return out
}

// WithMailboxSHA1 stores sum and makes it the active identifier.
func (a Actor) WithMailboxSHA1(sum string) Actor {
	out := a.clone()
	out.MailboxSHA1 = sum
	out.Kind = MailboxSHA1
	return out
}

// WithOpenID stores uri and makes it the active identifier.
func (a Actor) WithOpenID(uri string) Actor {
	out := a.clone()
	out.OpenID = uri
	out.Kind = OpenID
	return out
}

// WithAccount stores the account and makes it the active identifier.
func (a Actor) WithAccount(homePage, name string) Actor {
	out := a.clone()
	out.Account = &Account{HomePage: homePage, Name: name}
	out.Kind = AccountID
	return out
}

// WithMember returns a copy with m appended. The result is always a Group.
func (a Actor) WithMember(m Actor) Actor {
	out := a.clone()
	out.Members = append(out.Members, m.clone())
	out.Type = GroupType
	return out
}

// WithoutMembers returns a copy with no members. The result is always an Agent.
func (a Actor) WithoutMembers() Actor {
	out := a.clone()
	out.Members = nil
	out.Type = AgentType
	return out
}

// AsGroup returns a copy typed as a Group, keeping members.
func (a Actor) AsGroup() Actor {
	out := a.clone()
	out.Type = GroupType
	return out
}

// Validate checks that the active identifier slot holds a value. Anonymous
// groups pass when they have at least one member.
func (a Actor) Validate() error {
	if a.Kind == NoIdentifier {
		if a.IsGroup() && len(a.Members) > 0 {
			return a.validateMembers()
		}
		return &InvalidIdentifierError{Kind: NoIdentifier}
	}
	empty := false
	switch a.Kind {
	case Mailbox:
		empty = a.Mailbox == ""
	case MailboxSHA1:
		empty = a.MailboxSHA1 == ""
	case OpenID:
		empty = a.OpenID == ""
	case AccountID:
		empty = a.Account == nil || a.Account.HomePage == "" || a.Account.Name == ""
	}
	if empty {
		return &InvalidIdentifierError{Kind: a.Kind}
	}
	return a.validateMembers()
}

func (a Actor) validateMembers() error {
	for _, m := range a.Members {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolveIdentifierKind infers the identifier kind from the populated slots in
// the order account, mbox_sha1sum, mbox, openid. An actor with no identifier
// resolves to OpenID.
func ResolveIdentifierKind(a Actor) IFIKind {
	switch {
	case a.Account != nil:
		return AccountID
	case a.MailboxSHA1 != "":
		return MailboxSHA1
	case a.Mailbox != "":
		return Mailbox
	default:
		return OpenID
	}
}

type actorJSON struct {
	ObjectType  string   `json:"objectType,omitempty"`
	Name        string   `json:"name,omitempty"`
	Mbox        string   `json:"mbox,omitempty"`
	MboxSHA1Sum string   `json:"mbox_sha1sum,omitempty"`
	OpenID      string   `json:"openid,omitempty"`
	Account     *Account `json:"account,omitempty"`
	Member      []Actor  `json:"member,omitempty"`
}

func (a Actor) MarshalJSON() ([]byte, error) {
	out := actorJSON{ObjectType: a.ObjectType(), Name: a.Name}
	switch a.Kind {
	case Mailbox:
		if a.Mailbox != "" {
			out.Mbox = mailtoPrefix + a.Mailbox
		}
	case MailboxSHA1:
		out.MboxSHA1Sum = a.MailboxSHA1
	case OpenID:
		out.OpenID = a.OpenID
	case AccountID:
		out.Account = a.Account
	}
	if a.IsGroup() && len(a.Members) > 0 {
		out.Member = a.Members
	}
	return json.Marshal(out)
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var in actorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*a = Actor{
		Name:        in.Name,
		Type:        AgentType,
		Mailbox:     strings.TrimPrefix(in.Mbox, mailtoPrefix),
		MailboxSHA1: in.MboxSHA1Sum,
		OpenID:      in.OpenID,
		Account:     in.Account,
		Members:     in.Member,
	}
	if in.ObjectType == string(GroupType) {
		a.Type = GroupType
	}
	a.Kind = ResolveIdentifierKind(*a)
	if a.IsGroup() && a.Kind == OpenID && a.OpenID == "" && len(a.Members) > 0 {
		a.Kind = NoIdentifier
	}
	return nil
}

func (a Actor) clone() Actor {
	out := a
	if a.Account != nil {
		acct := *a.Account
		out.Account = &acct
	}
	out.Members = cloneActors(a.Members)
	return out
}

func cloneActors(in []Actor) []Actor {
	if in == nil {
		return nil
	}
	out := make([]Actor, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}
