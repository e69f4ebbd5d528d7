package commands

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/calibration"
	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

// setupTestEnv points the config directory at a temp dir.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	verbose = false
	configPath = ""
	dataDir = ""
	format = "yaml"
	verifyRetry = false
	runSpeaker, runFusion, runConcurrency, runOut, runC = false, false, 0, "", 1
	listFrom = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func voice(f0 float64, seed uint64) waveform.Waveform {
	rng := rand.New(rand.NewPCG(seed, 7))
	s := make([]float64, 24000)
	for i := range s {
		tm := float64(i) / waveform.SampleRate
		env := 0.5 + 0.5*math.Sin(2*math.Pi*4*tm)
		var v float64
		for h, amp := range []float64{1, 0.6, 0.4, 0.25} {
			v += amp * math.Sin(2*math.Pi*f0*float64(h+1)*tm)
		}
		s[i] = 0.15*env*v + 0.02*rng.NormFloat64()
	}
	return waveform.New(s, waveform.SampleRate)
}

func steadyTone(f0 float64) waveform.Waveform {
	s := make([]float64, 24000)
	for i := range s {
		s[i] = 0.4 * math.Sin(2*math.Pi*f0*float64(i)/waveform.SampleRate)
	}
	return waveform.New(s, waveform.SampleRate)
}

func saveWAV(t *testing.T, w waveform.Waveform, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, w.SaveWAV(p))
	return p
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "voicetrust")
}

func TestCalibrateEER(t *testing.T) {
	dir := setupTestEnv(t)
	gen := filepath.Join(dir, "genuine.txt")
	imp := filepath.Join(dir, "impostor.txt")
	require.NoError(t, os.WriteFile(gen, []byte("# genuine\n0.9\n0.95\n\n0.92\n"), 0o644))
	require.NoError(t, os.WriteFile(imp, []byte("0.1\n0.2\n0.3\n"), 0o644))

	out, err := runCmd(t, "calibrate", "eer", "--genuine", gen, "--impostor", imp, "-o", "json")
	require.NoError(t, err)

	var got eerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 0.9, got.Threshold, 1e-12)
	assert.Zero(t, got.EER)
	assert.Equal(t, 3, got.Genuine)
	assert.Equal(t, 3, got.Impostor)
}

func TestCalibrateEERBadScore(t *testing.T) {
	dir := setupTestEnv(t)
	gen := filepath.Join(dir, "genuine.txt")
	imp := filepath.Join(dir, "impostor.txt")
	require.NoError(t, os.WriteFile(gen, []byte("0.9\nabc\n"), 0o644))
	require.NoError(t, os.WriteFile(imp, []byte("0.1\n"), 0o644))

	_, err := runCmd(t, "calibrate", "eer", "--genuine", gen, "--impostor", imp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genuine.txt:2")
}

func TestScore(t *testing.T) {
	dir := setupTestEnv(t)
	p := saveWAV(t, voice(150, 1), dir, "a.wav")

	out, err := runCmd(t, "score", p)
	require.NoError(t, err)

	var got scoreOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, p, got.File)
	assert.GreaterOrEqual(t, got.SpoofProb, 0.0)
	assert.LessOrEqual(t, got.SpoofProb, 1.0)
	assert.GreaterOrEqual(t, got.ReplayProb, 0.0)
	assert.LessOrEqual(t, got.ReplayProb, 1.0)
	assert.InDelta(t, 150, got.Pitch, 15)
}

func TestScoreMissingFile(t *testing.T) {
	dir := setupTestEnv(t)
	_, err := runCmd(t, "score", filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
}

func TestEnrollVerifyProfile(t *testing.T) {
	dir := setupTestEnv(t)
	data := filepath.Join(dir, "db")

	var files []string
	for i := range 3 {
		files = append(files, saveWAV(t, voice(140, uint64(i+1)), dir, "enroll", "e"+string(rune('a'+i))+".wav"))
	}
	out, err := runCmd(t, append([]string{"--data", data, "enroll", "alice", "home"}, files...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "user_id: alice")
	assert.Contains(t, out, "utterances: 3")

	live := saveWAV(t, voice(141, 99), dir, "live.wav")
	out, err = runCmd(t, "--data", data, "verify", "alice", live, "-o", "json")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "alice", res["user_id"])
	assert.Equal(t, "home", res["best_label"])
	assert.Contains(t, []any{"VERIFIED", "REPEAT", "DENIED"}, res["decision"])

	out, err = runCmd(t, "--data", data, "profile", "list")
	require.NoError(t, err)
	var users []userSummary
	require.NoError(t, yaml.Unmarshal([]byte(out), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserID)
	assert.Equal(t, []string{"home"}, users[0].Enrollments)

	out, err = runCmd(t, "--data", data, "profile", "show", "alice")
	require.NoError(t, err)
	var d userDetail
	require.NoError(t, yaml.Unmarshal([]byte(out), &d))
	require.Len(t, d.Enrollments, 1)
	require.Len(t, d.Profiles, 1)
	assert.GreaterOrEqual(t, d.Profiles[0].NSamples, uint64(1))

	_, err = runCmd(t, "--data", data, "verify", "bob", live)
	require.Error(t, err)

	_, err = runCmd(t, "--data", data, "unenroll", "alice", "home")
	require.NoError(t, err)
	_, err = runCmd(t, "--data", data, "profile", "show", "alice")
	require.Error(t, err)
}

func TestCalibrateRun(t *testing.T) {
	dir := setupTestEnv(t)
	corpus := filepath.Join(dir, "corpus")
	saveWAV(t, voice(140, 1), corpus, "enroll.wav")
	for i, f0 := range []float64{138, 140, 142, 145} {
		saveWAV(t, voice(f0, uint64(10+i)), corpus, "genuine", "g"+string(rune('a'+i))+".wav")
	}
	for i, f0 := range []float64{230, 250, 270} {
		saveWAV(t, voice(f0, uint64(20+i)), corpus, "impostor", "i"+string(rune('a'+i))+".wav")
	}
	for i, f0 := range []float64{140, 160, 180} {
		saveWAV(t, steadyTone(f0), corpus, "spoof", "s"+string(rune('a'+i))+".wav")
	}
	outDir := filepath.Join(dir, "artifacts")

	out, err := runCmd(t, "calibrate", "run", corpus, "--speaker", "--out", outDir, "--concurrency", "2")
	require.NoError(t, err)
	var got runOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got.Run)
	require.NotNil(t, got.Report.Speaker)
	require.NotNil(t, got.Report.Spoof)

	for _, name := range []string{reportArtifact, spoofModelArtifact, engineArtifact} {
		_, err := os.Stat(filepath.Join(outDir, got.Run, name))
		assert.NoError(t, err, name)
	}

	// The written engine config is accepted by commands that load it.
	cfgPath := filepath.Join(outDir, got.Run, engineArtifact)
	_, err = runCmd(t, "--config", cfgPath, "score", filepath.Join(corpus, "enroll.wav"))
	require.NoError(t, err)

	out, err = runCmd(t, "calibrate", "list", "--from", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, got.Run+"/"+reportArtifact)

	out, err = runCmd(t, "calibrate", "show", got.Run, "--from", outDir)
	require.NoError(t, err)
	var shown showOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.InDelta(t, got.Report.Speaker.Threshold, shown.Report.Speaker.Threshold, 1e-9)
	assert.Equal(t, got.Report.Speaker.Positive, shown.Report.Speaker.Positive)

	_, err = runCmd(t, "calibrate", "show", "nope", "--from", outDir)
	require.ErrorContains(t, err, "nope")
}

func TestCalibrateRunSpoofOnly(t *testing.T) {
	dir := setupTestEnv(t)
	corpus := filepath.Join(dir, "corpus")
	for i, f0 := range []float64{120, 150, 180} {
		saveWAV(t, voice(f0, uint64(i+1)), corpus, "genuine", "g"+string(rune('a'+i))+".wav")
		saveWAV(t, steadyTone(f0), corpus, "spoof", "s"+string(rune('a'+i))+".wav")
	}

	// Default output lands in the config directory.
	out, err := runCmd(t, "calibrate", "run", corpus)
	require.NoError(t, err)
	var got runOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Nil(t, got.Report.Speaker)
	require.NotNil(t, got.Report.Spoof)
	assert.True(t, strings.HasPrefix(got.Location, dir))

	var report calibration.Report
	data, err := os.ReadFile(filepath.Join(got.Location, got.Run, reportArtifact))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.Equal(t, 3, report.Spoof.Positive)
	assert.Equal(t, 3, report.Spoof.Negative)
}

func TestUnsupportedFormat(t *testing.T) {
	setupTestEnv(t)
	dir := t.TempDir()
	gen := filepath.Join(dir, "g.txt")
	require.NoError(t, os.WriteFile(gen, []byte("1\n"), 0o644))
	_, err := runCmd(t, "calibrate", "eer", "--genuine", gen, "--impostor", gen, "-o", "xml")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestTextFormat(t *testing.T) {
	dir := setupTestEnv(t)
	gen := filepath.Join(dir, "g.txt")
	imp := filepath.Join(dir, "i.txt")
	require.NoError(t, os.WriteFile(gen, []byte("0.8\n0.9\n"), 0o644))
	require.NoError(t, os.WriteFile(imp, []byte("0.1\n0.2\n"), 0o644))

	out, err := runCmd(t, "calibrate", "eer", "--genuine", gen, "--impostor", imp, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "threshold")
	assert.Contains(t, out, "0.8000")
	assert.Contains(t, out, "0.00%")

	out, err = runCmd(t, "--data", filepath.Join(dir, "db"), "profile", "list", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "no enrolled users")

	p := saveWAV(t, voice(150, 1), dir, "a.wav")
	_, err = runCmd(t, "score", p, "-o", "text")
	require.ErrorContains(t, err, "not supported")
}

func TestRenderResult(t *testing.T) {
	behavior := 0.8
	r := &voicetrust.Result{
		AttemptID:     "a1",
		UserID:        "alice",
		Decision:      decision.Repeat,
		Reason:        decision.ReasonUncertain,
		SpeakerScore:  0.4,
		BehaviorScore: &behavior,
		BestLabel:     "home",
		UpdateRefusal: "decision not verified",
		Thresholds:    decision.DefaultConfig(),
	}
	text, ok := renderText(r)
	require.True(t, ok)
	assert.Contains(t, text, "REPEAT")
	assert.Contains(t, text, "alice")
	assert.Contains(t, text, "0.800")
	assert.Contains(t, text, "no (decision not verified)")
	assert.Contains(t, text, "attempt a1")

	_, ok = renderText(42)
	assert.False(t, ok)
}

func TestRootExamplesResolve(t *testing.T) {
	var n int
	for _, line := range strings.Split(rootCmd.Long, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "voicetrust" {
			continue
		}
		n++
		cmd, _, err := rootCmd.Find(fields[1:])
		require.NoError(t, err, line)
		assert.True(t, cmd.Runnable(), "example %q does not name a runnable command (got %q)", line, cmd.CommandPath())
	}
	assert.Positive(t, n)
}
