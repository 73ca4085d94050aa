package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimuhq/elimu/core"
)

func TestConsoleServiceCapture(t *testing.T) {
	core.Conf = &core.Config{
		TestMode:         true,
		AppName:          "Elimu",
		DefaultFromEmail: mail.Address{Name: "Elimu", Address: "noreply@elimu.test"},
	}
	svc := NewConsoleServiceMock(core.Conf)

	t.Run("captures rendered messages", func(t *testing.T) {
		ClearSentMessages()

		svc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Name: "Jane", Address: "jane@test.ke"}},
			Subject: "Hello",
			BodyStr: "plain text body",
		})

		require.Len(t, SentMessages, 1)
		assert.Equal(t, "Hello", SentMessages[0].Subject)
		assert.Equal(t, "plain text body", SentMessages[0].TextContent)
	})

	t.Run("drops messages without recipients", func(t *testing.T) {
		ClearSentMessages()

		svc.SendMessages(&core.EmailMessage{Subject: "Nobody home", BodyStr: "hi"})
		assert.Empty(t, SentMessages)
	})

	t.Run("drops messages without content", func(t *testing.T) {
		ClearSentMessages()

		svc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Address: "jane@test.ke"}},
			Subject: "Empty",
		})
		assert.Empty(t, SentMessages)
	})
}
