package xapi

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorSerializesOnlyActiveIdentifier(t *testing.T) {
	ann := AgentFromMailbox("Ann", "ann@example.com").
		WithOpenID("https://id.example.com/ann").
		WithAccount("https://lms.example.com", "ann01")

	raw, err := json.Marshal(ann)
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectType":"Agent","name":"Ann","account":{"homePage":"https://lms.example.com","name":"ann01"}}`, string(raw))

	raw, err = json.Marshal(ann.WithKind(Mailbox))
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectType":"Agent","name":"Ann","mbox":"mailto:ann@example.com"}`, string(raw))

	raw, err = json.Marshal(ann.WithKind(OpenID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectType":"Agent","name":"Ann","openid":"https://id.example.com/ann"}`, string(raw))
}

func TestActorMailboxPrefixHandledOnce(t *testing.T) {
	a := AgentFromMailbox("", "mailto:bob@example.com")
	assert.Equal(t, "bob@example.com", a.Mailbox)
	assert.Equal(t, "mailto:bob@example.com", a.Identifier())

	var decoded Actor
	require.NoError(t, json.Unmarshal([]byte(`{"mbox":"mailto:bob@example.com"}`), &decoded))
	assert.Equal(t, "bob@example.com", decoded.Mailbox)
	assert.Equal(t, Mailbox, decoded.Kind)
}

func TestActorMembersFollowType(t *testing.T) {
	team := AgentFromAccount("Team", "https://lms.example.com", "team-1").
		WithMember(AgentFromMailbox("Ann", "ann@example.com"))
	assert.True(t, team.IsGroup())

	raw, err := json.Marshal(team)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"objectType":"Group","name":"Team",
		"account":{"homePage":"https://lms.example.com","name":"team-1"},
		"member":[{"objectType":"Agent","name":"Ann","mbox":"mailto:ann@example.com"}]
	}`, string(raw))

	solo := team.WithoutMembers()
	assert.False(t, solo.IsGroup())
	raw, err = json.Marshal(solo)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "member")
	assert.Len(t, team.Members, 1, "copy-with-update must not touch the original")
}

func TestEmptyGroupOmitsMember(t *testing.T) {
	g := AgentFromOpenID("Empty", "https://id.example.com/g").AsGroup()
	raw, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectType":"Group","name":"Empty","openid":"https://id.example.com/g"}`, string(raw))
}

func TestResolveIdentifierKindPriority(t *testing.T) {
	cases := []struct {
		name string
		json string
		want IFIKind
	}{
		{"account wins", `{"mbox":"mailto:a@example.com","mbox_sha1sum":"abc","openid":"x","account":{"homePage":"h","name":"n"}}`, AccountID},
		{"sha1 over mbox", `{"mbox":"mailto:a@example.com","mbox_sha1sum":"abc","openid":"x"}`, MailboxSHA1},
		{"mbox over openid", `{"mbox":"mailto:a@example.com","openid":"x"}`, Mailbox},
		{"openid", `{"openid":"x"}`, OpenID},
		{"nothing falls back to openid", `{"name":"nobody"}`, OpenID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a Actor
			require.NoError(t, json.Unmarshal([]byte(tc.json), &a))
			assert.Equal(t, tc.want, a.Kind)
		})
	}
}

func TestDecodedActorWithoutIdentifierFailsValidation(t *testing.T) {
	var a Actor
	require.NoError(t, json.Unmarshal([]byte(`{"name":"nobody"}`), &a))

	var idErr *InvalidIdentifierError
	require.True(t, errors.As(a.Validate(), &idErr))
	assert.Equal(t, OpenID, idErr.Kind)
}

func TestAnonymousGroupValidates(t *testing.T) {
	g := AnonymousGroup("Pair", AgentFromMailbox("Ann", "ann@example.com"), AgentFromOpenID("", "https://id.example.com/bob"))
	require.NoError(t, g.Validate())

	raw, err := json.Marshal(g)
	require.NoError(t, err)
	var back Actor
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, NoIdentifier, back.Kind)
	assert.Len(t, back.Members, 2)
	require.NoError(t, back.Validate())
}

func TestActorValidateRejectsEmptySlot(t *testing.T) {
	a := AgentFromMailbox("Ann", "ann@example.com").WithKind(AccountID)
	var idErr *InvalidIdentifierError
	require.True(t, errors.As(a.Validate(), &idErr))
	assert.Equal(t, AccountID, idErr.Kind)
}

func TestMailboxSHA1Sum(t *testing.T) {
	assert.Equal(t, "0a7d8ea2f2ac01afbbf12061eb5324d2c8bb73df", MailboxSHA1Sum("ann@example.com"))
	assert.Equal(t, MailboxSHA1Sum("ann@example.com"), MailboxSHA1Sum("mailto:ann@example.com"))
}
