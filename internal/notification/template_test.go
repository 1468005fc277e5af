package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates_AllKinds(t *testing.T) {
	t.Parallel()

	store, err := DefaultTemplates()
	require.NoError(t, err)

	assert.Equal(t, []Kind{
		KindCertificateExpiry,
		KindMentorshipSession,
		KindTrainingCompletion,
		KindTrainingReminder,
		KindWeeklyReport,
		KindWelcome,
	}, store.Kinds())
}

func TestTemplateStore_GetUnknownKind(t *testing.T) {
	t.Parallel()

	store, err := NewTemplateStore(Template{Kind: KindWelcome, Subject: "hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	_, err = store.Get("PAYROLL_SLIP")
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "PAYROLL_SLIP")
}

func TestNewTemplateStore_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		templates []Template
		wantErr   string
	}{
		{
			name:      "missing kind",
			templates: []Template{{Subject: "s", HTML: "h"}},
			wantErr:   "kind is required",
		},
		{
			name: "duplicate kind",
			templates: []Template{
				{Kind: KindWelcome, Subject: "s", HTML: "h"},
				{Kind: KindWelcome, Subject: "s2", HTML: "h2"},
			},
			wantErr: "duplicate template",
		},
		{
			name:      "missing subject",
			templates: []Template{{Kind: KindWelcome, Subject: " ", HTML: "h"}},
			wantErr:   "subject is required",
		},
		{
			name:      "missing html",
			templates: []Template{{Kind: KindWelcome, Subject: "s"}},
			wantErr:   "html is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTemplateStore(tt.templates...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		store, err := LoadTemplates([]byte(`
templates:
  - kind: WELCOME
    subject: "Welcome {name}"
    html: "<p>{name}</p>"
`))
		require.NoError(t, err)
		tmpl, err := store.Get(KindWelcome)
		require.NoError(t, err)
		assert.Equal(t, "Welcome {name}", tmpl.Subject)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTemplates([]byte("templates: [\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse templates")
	})
}
