package aws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		opts S3Options
		key  string
		want string
	}{
		{
			name: "virtual hosted",
			opts: S3Options{Bucket: "vanu-assets"},
			key:  "district-stock-point-applications/u1/photo-me.png",
			want: "https://vanu-assets.s3.ap-south-1.amazonaws.com/district-stock-point-applications/u1/photo-me.png",
		},
		{
			name: "public base url",
			opts: S3Options{Bucket: "vanu-assets", PublicBaseURL: "https://cdn.vanu.in/"},
			key:  "avatars/u1",
			want: "https://cdn.vanu.in/avatars/u1",
		},
		{
			name: "custom endpoint escapes segments",
			opts: S3Options{Bucket: "b", Endpoint: "http://localhost:9000"},
			key:  "avatars/my photo.png",
			want: "http://localhost:9000/b/avatars/my%20photo.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectURL(tt.opts, "ap-south-1", tt.key))
		})
	}
}

func TestBuildEmailInput(t *testing.T) {
	in := BuildEmailInput("from@vanu.in", "to@x.com", "Subject", "text", "")
	assert.Equal(t, "to@x.com", in.Destination.ToAddresses[0])
	assert.Nil(t, in.Message.Body.Html)

	in = BuildEmailInput("from@vanu.in", "to@x.com", "Subject", "text", "<p>html</p>")
	assert.Equal(t, "<p>html</p>", *in.Message.Body.Html.Data)
}
