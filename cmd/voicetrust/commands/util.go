package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-yaml"

	"github.com/AIINA17/Livekit-Biometric/pkg/artifact"
	"github.com/AIINA17/Livekit-Biometric/pkg/profilestore"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

// output writes v to w in the --format encoding. The text format is a
// styled summary available for a few commands.
func output(w io.Writer, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		text, ok := renderText(v)
		if !ok {
			return fmt.Errorf("text output is not supported here, use yaml or json")
		}
		_, err := io.WriteString(w, text)
		return err
	case "yaml", "":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// openStore opens the badger profile database honoring --data.
func openStore() (*profilestore.Store, error) {
	dir := dataDir
	if dir == "" {
		p, err := paths()
		if err != nil {
			return nil, err
		}
		dir = p.ProfilesDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := profilestore.OpenBadger(profilestore.BadgerOptions{Dir: dir, Logger: newLogger()})
	if err != nil {
		return nil, err
	}
	return profilestore.New(db), nil
}

// openVerifier opens the store and builds a Verifier with the model-free
// mel embedder. The caller closes the returned store.
func openVerifier() (*voicetrust.Verifier, *profilestore.Store, error) {
	cfg, err := loadEngine()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	v, err := voicetrust.New(cfg, store, speaker.NewMelEmbedder(speaker.DefaultMelConfig()),
		voicetrust.WithLogger(newLogger()))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return v, store, nil
}

// openArtifacts opens a local directory or an s3://bucket/prefix location.
func openArtifacts(loc string) (artifact.Store, error) {
	l, err := artifact.ParseLocation(loc)
	if err != nil {
		return nil, err
	}
	if !l.IsS3() {
		return artifact.NewLocal(l.Dir)
	}
	return artifact.NewS3(newS3Client(), l.Bucket, l.Prefix), nil
}

// newS3Client builds an S3 client from the standard AWS environment
// variables. AWS_ENDPOINT_URL selects S3-compatible services, which
// usually also need VOICETRUST_S3_PATH_STYLE=1.
func newS3Client() *s3.Client {
	opts := s3.Options{
		Region:       envOr("AWS_REGION", "us-east-1"),
		UsePathStyle: os.Getenv("VOICETRUST_S3_PATH_STYLE") != "",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		}),
	}
	if ep := os.Getenv("AWS_ENDPOINT_URL"); ep != "" {
		opts.BaseEndpoint = aws.String(ep)
	}
	return s3.New(opts)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// readScores reads one float per line. Blank lines and lines starting
// with '#' are skipped.
func readScores(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
