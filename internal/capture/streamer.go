package capture

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/taskmgr818/rehab-client/internal/protocol"
	"github.com/taskmgr818/rehab-client/internal/session"
)

// Streamer pushes captured frames upstream as video commands while an
// evaluation is running. Frames are dropped silently when the session is
// not evaluating or the connection cannot accept them.
type Streamer struct {
	source   FrameSource
	sender   session.Sender
	sess     *session.Session
	interval time.Duration
}

// NewStreamer creates a streamer that emits at the given frame rate.
func NewStreamer(source FrameSource, sender session.Sender, sess *session.Session, fps int) *Streamer {
	if fps <= 0 {
		fps = 30
	}
	return &Streamer{
		source:   source,
		sender:   sender,
		sess:     sess,
		interval: time.Second / time.Duration(fps),
	}
}

// Run streams frames until ctx is cancelled.
func (st *Streamer) Run(ctx context.Context) {
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !st.sess.Evaluating() {
				continue
			}
			st.sendFrame(ctx)
		}
	}
}

func (st *Streamer) sendFrame(ctx context.Context) {
	frame, err := st.source.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[capture] frame read failed: %v", err)
		}
		return
	}

	cmd := protocol.VideoFrame{
		Data: base64.StdEncoding.EncodeToString(frame),
	}
	if sel := st.sess.Selected(); sel != nil {
		cmd.SelectedActionID = sel.ID
	}

	st.sender.Send(cmd)
}
