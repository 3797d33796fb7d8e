package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
)

type fakeAPI struct {
	err  error
	key  string
	body string
	ct   string
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.key, f.body, f.ct = aws.ToString(in.Key), string(data), aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func staticCreds() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret"}, nil
	})
}

func TestUploadReturnsPublicURL(t *testing.T) {
	api := &fakeAPI{}
	s := &Store{api: api, creds: staticCreds(), bucket: "zoe-images", baseURL: "https://cdn.example.com"}

	url, err := s.Upload(context.Background(), "learning_app/abc.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/learning_app/abc.png", url)
	require.Equal(t, "learning_app/abc.png", api.key)
	require.Equal(t, "png", api.body)
	require.Equal(t, "image/png", api.ct)
}

func TestUploadWithoutCredentials(t *testing.T) {
	api := &fakeAPI{}
	missing := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no EC2 IMDS role found")
	})
	s := &Store{api: api, creds: missing, bucket: "b", baseURL: "https://b"}

	_, err := s.Upload(context.Background(), "k", strings.NewReader("x"), "image/png")
	require.ErrorIs(t, err, domain.ErrCredentialsMissing)
	require.Empty(t, api.key, "nothing is uploaded")
}

func TestUploadAccessDeniedIsCredentialError(t *testing.T) {
	api := &fakeAPI{err: &smithy.GenericAPIError{Code: "InvalidAccessKeyId", Message: "bad key"}}
	s := &Store{api: api, creds: staticCreds(), bucket: "b", baseURL: "https://b"}
	_, err := s.Upload(context.Background(), "k", strings.NewReader("x"), "image/png")
	require.ErrorIs(t, err, domain.ErrCredentialsMissing)

	api.err = &smithy.GenericAPIError{Code: "NoSuchBucket"}
	_, err = s.Upload(context.Background(), "k", strings.NewReader("x"), "image/png")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrCredentialsMissing)
}
