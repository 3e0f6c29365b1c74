package media

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"

	"github.com/Beusted/talk-to-me/internal/logging"
)

// RoomPublisher implements CaptionPublisher and TrackPublisher on top of a
// connected LiveKit room.
type RoomPublisher struct {
	room *lksdk.Room
}

// NewRoomPublisher wraps a connected room.
func NewRoomPublisher(room *lksdk.Room) *RoomPublisher {
	return &RoomPublisher{room: room}
}

// captionPacket adapts a transcription to the SDK's data packet interface.
type captionPacket struct {
	transcription *livekit.Transcription
}

func (p *captionPacket) ToProto() *livekit.DataPacket {
	return &livekit.DataPacket{
		Value: &livekit.DataPacket_Transcription{Transcription: p.transcription},
	}
}

// PublishCaptions publishes transcription segments attributed to the given
// participant and track.
func (r *RoomPublisher) PublishCaptions(ctx context.Context, participantIdentity, trackID string, segments []CaptionSegment) error {
	if len(segments) == 0 {
		return nil
	}

	out := make([]*livekit.TranscriptionSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, &livekit.TranscriptionSegment{
			Id:        seg.ID,
			Text:      seg.Text,
			Language:  seg.Language,
			Final:     seg.Final,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
		})
	}

	packet := &captionPacket{
		transcription: &livekit.Transcription{
			TranscribedParticipantIdentity: participantIdentity,
			TrackId:                        trackID,
			Segments:                       out,
		},
	}

	if err := r.room.LocalParticipant.PublishDataPacket(packet, lksdk.WithDataPublishReliable(true)); err != nil {
		return fmt.Errorf("publish transcription: %w", err)
	}
	return nil
}

// pcmTrackWriter wraps a published PCM local track.
type pcmTrackWriter struct {
	track *lkmedia.PCMLocalTrack
}

func (w *pcmTrackWriter) WriteFrame(pcm []int16) error {
	return w.track.WriteSample(pcm)
}

func (w *pcmTrackWriter) Close() {
	w.track.Close()
}

// PublishAudioTrack creates a PCM local track with the given format and
// publishes it into the room under the given name.
func (r *RoomPublisher) PublishAudioTrack(ctx context.Context, name string, sampleRate, channels int) (AudioWriter, error) {
	track, err := lkmedia.NewPCMLocalTrack(sampleRate, channels, nil)
	if err != nil {
		return nil, fmt.Errorf("create PCM track: %w", err)
	}

	pub, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		track.Close()
		return nil, fmt.Errorf("publish track: %w", err)
	}

	pub.SetMuted(false)
	logging.Info(logging.CategoryLiveKit, "published audio track name=%s rate=%d channels=%d", name, sampleRate, channels)

	return &pcmTrackWriter{track: track}, nil
}
