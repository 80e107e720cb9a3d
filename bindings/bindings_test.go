package bindings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleServices = `{
  "amazon-s3": [
    {
      "name": "files",
      "label": "amazon-s3",
      "plan": "standard",
      "tags": ["s3"],
      "credentials": {
        "bucket": "my-bucket",
        "access_key_id": "AKIA",
        "secret_access_key": "secret",
        "port": 443
      }
    }
  ],
  "Object-Storage": []
}`

func TestParseServices(t *testing.T) {
	services, err := ParseServices([]byte(sampleServices))
	require.NoError(t, err)

	assert.Equal(t, []string{"Object-Storage", "amazon-s3"}, services.Keys())

	binding, ok := services.First("amazon-s3")
	require.True(t, ok)
	assert.Equal(t, "files", binding.Name)
	assert.Equal(t, "my-bucket", binding.Credentials["bucket"])

	_, ok = services.First("Object-Storage")
	assert.False(t, ok, "empty instance list has no first binding")
}

func TestParseServices_Empty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		services, err := ParseServices([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, services)
	}
}

func TestParseServices_Invalid(t *testing.T) {
	_, err := ParseServices([]byte(`{"amazon-s3": "nope"}`))
	assert.ErrorIs(t, err, interfaces.ErrInvalidBindings)
}

func TestServicesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcap.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleServices), 0600))

	services, err := ServicesFromFile(path)
	require.NoError(t, err)
	assert.Len(t, services, 2)

	_, err = ServicesFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestServicesFromOS(t *testing.T) {
	t.Setenv(interfaces.EnvServices, sampleServices)
	services, err := ServicesFromOS()
	require.NoError(t, err)
	assert.Contains(t, services, "amazon-s3")
}

func TestDecodeCredentials(t *testing.T) {
	services, err := ParseServices([]byte(sampleServices))
	require.NoError(t, err)
	binding, _ := services.First("amazon-s3")

	var creds struct {
		Bucket   string  `mapstructure:"bucket"`
		Port     string  `mapstructure:"port"`
		Endpoint *string `mapstructure:"endpoint"`
	}
	require.NoError(t, DecodeCredentials(binding, &creds))
	assert.Equal(t, "my-bucket", creds.Bucket)
	assert.Equal(t, "443", creds.Port)
	assert.Nil(t, creds.Endpoint)
}

func TestEnvironmentFrom(t *testing.T) {
	source := map[string]string{
		interfaces.EnvS3BucketName: "override",
		interfaces.EnvS3KeySuffix:  "",
		"UNRELATED":                "x",
	}
	env := EnvironmentFrom(func(k string) (string, bool) {
		v, ok := source[k]
		return v, ok
	})

	assert.Len(t, env, 2)
	v, ok := env.Lookup(interfaces.EnvS3KeySuffix)
	assert.True(t, ok, "empty values are still set")
	assert.Equal(t, "", v)
	assert.Equal(t, "override", env.Get(interfaces.EnvS3BucketName, "default"))
	assert.Equal(t, "default", env.Get(interfaces.EnvS3Endpoint, "default"))
}

func TestEnvironmentFromOS(t *testing.T) {
	t.Setenv(interfaces.EnvS3UseSSE, "TRUE")
	env := EnvironmentFromOS()
	assert.True(t, env.IsTrue(interfaces.EnvS3UseSSE, ""))
}
