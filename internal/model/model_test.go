package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectKeyForIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKeyFor("a", "b"), DirectKeyFor("b", "a"))
	assert.Equal(t, "a:b", DirectKeyFor("b", "a"))
}

func TestProfileFallbacks(t *testing.T) {
	var missing *Profile
	assert.Equal(t, UnknownDisplayName, missing.Name())
	assert.Nil(t, missing.Avatar())

	avatar := "https://cdn/a.png"
	p := &Profile{DisplayName: "Ma", AvatarURL: &avatar}
	assert.Equal(t, "Ma", p.Name())
	assert.Equal(t, &avatar, p.Avatar())
	assert.Equal(t, UnknownDisplayName, (&Profile{}).Name())
}

func TestPreferenceDefaultsToEnabled(t *testing.T) {
	var unset *NotificationPreference
	assert.True(t, unset.Sound())
	assert.True(t, unset.Push())

	off := false
	p := &NotificationPreference{PushEnabled: &off}
	assert.True(t, p.Sound())
	assert.False(t, p.Push())
}
