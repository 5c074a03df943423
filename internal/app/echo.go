package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/panorama/internal/core"
	"github.com/dkeye/panorama/internal/domain"
	"github.com/dkeye/panorama/internal/session"
)

const echoSuffix = "_ret"

// Echo answers every text frame with the same text plus "_ret".
// Binary frames are only logged.
type Echo struct{}

func (Echo) OnMessage(s *session.Session, f core.Frame) {
	switch f.Kind() {
	case core.FrameText:
		ctx, cancel := context.WithTimeout(context.Background(), s.Config().WriteTimeout)
		defer cancel()
		if err := s.Send(ctx, core.Text(f.Text()+echoSuffix)); err != nil {
			log.Warn().Err(err).Str("module", "app.echo").Str("sid", string(s.ID())).Msg("echo reply dropped")
		}
	case core.FrameBinary:
		log.Info().Str("module", "app.echo").Str("sid", string(s.ID())).Int("len", f.Len()).Msg("received binary")
	}
}

// EchoFactory hands every peer the Echo handler.
func EchoFactory(domain.Peer) session.Handler { return Echo{} }
