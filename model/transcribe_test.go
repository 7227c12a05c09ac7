package model

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
	putErr  error
}

func (b *memBucket) Put(_ context.Context, name string, r io.Reader) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[name] = data
	return nil
}

func (b *memBucket) Delete(_ context.Context, name string) error {
	delete(b.objects, name)
	return nil
}

func (b *memBucket) URI(name string) string { return "gs://media/" + name }

func TestAudioSource_Inline(t *testing.T) {
	bucket := &memBucket{objects: map[string][]byte{}}
	tr := &GCPTranscriber{bucket: bucket}

	audio := bytes.Repeat([]byte{1}, InlineAudioLimit)
	src, cleanup, err := tr.audioSource(context.Background(), audio, "talk.wav")
	require.NoError(t, err)
	defer cleanup()

	content, ok := src.GetAudioSource().(*speechpb.RecognitionAudio_Content)
	require.True(t, ok)
	assert.Len(t, content.Content, InlineAudioLimit)
	assert.Empty(t, bucket.objects)
}

func TestAudioSource_LargeGoesThroughBucket(t *testing.T) {
	bucket := &memBucket{objects: map[string][]byte{}}
	tr := &GCPTranscriber{bucket: bucket}

	audio := bytes.Repeat([]byte{1}, InlineAudioLimit+1)
	src, cleanup, err := tr.audioSource(context.Background(), audio, "talk.WAV")
	require.NoError(t, err)

	uri, ok := src.GetAudioSource().(*speechpb.RecognitionAudio_Uri)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(uri.Uri, "gs://media/transcribe/"))
	assert.True(t, strings.HasSuffix(uri.Uri, ".wav"))
	require.Len(t, bucket.objects, 1)
	for _, data := range bucket.objects {
		assert.Len(t, data, InlineAudioLimit+1)
	}

	cleanup()
	assert.Empty(t, bucket.objects)
}

func TestAudioSource_LargeWithoutBucket(t *testing.T) {
	tr := &GCPTranscriber{}
	_, _, err := tr.audioSource(context.Background(), make([]byte, InlineAudioLimit+1), "talk.wav")
	assert.ErrorContains(t, err, "inline recognition limit")
}

func TestAudioSource_BucketError(t *testing.T) {
	tr := &GCPTranscriber{bucket: &memBucket{objects: map[string][]byte{}, putErr: errors.New("denied")}}
	_, _, err := tr.audioSource(context.Background(), make([]byte, InlineAudioLimit+1), "talk.mp3")
	assert.ErrorContains(t, err, "denied")
}
