package sandbox

import (
	"errors"
	"testing"

	"github.com/sandveil/sandveil/internal/domain/global"
	"github.com/sandveil/sandveil/internal/domain/policy"
	"github.com/sandveil/sandveil/internal/shared/types"
)

type mockShared struct {
	installs int
	removes  int
	fail     error
}

func (m *mockShared) Install() error {
	if m.fail != nil {
		return m.fail
	}
	m.installs++
	return nil
}

func (m *mockShared) Remove() error {
	if m.fail != nil {
		return m.fail
	}
	m.removes++
	return nil
}

type mockEffect struct {
	releases int
	records  int
	rebuilds int
}

func (m *mockEffect) Release() error           { m.releases++; return nil }
func (m *mockEffect) RecordBeforeMount() error { m.records++; return nil }
func (m *mockEffect) RebuildOnRemount() error  { m.rebuilds++; return nil }

type mockBus struct {
	cleared   int
	snapshots int
	rebuilds  int
}

func (m *mockBus) ClearDataListener() error       { m.cleared++; return nil }
func (m *mockBus) ClearGlobalDataListener() error { return nil }
func (m *mockBus) SnapshotRecord() error          { m.snapshots++; return nil }
func (m *mockBus) SnapshotRebuild() error         { m.rebuilds++; return nil }

type mockRouter struct {
	inits  int
	clears int
}

func (m *mockRouter) InitRouteState(name, url string, v *global.Object) error {
	m.inits++
	v.Set("location", url)
	return nil
}

func (m *mockRouter) ClearRouteState(name, url string, v *global.Object) error {
	m.clears++
	v.Delete("location")
	return nil
}

func newTestEnv() (*Env, *mockShared, *mockShared) {
	capture := &mockShared{}
	patcher := &mockShared{}
	return NewEnv(global.NewStore(), capture, patcher), capture, patcher
}

func newTestSandbox(name string, env *Env, rules ...policy.Rule) *Sandbox {
	return New(Config{Name: name, URL: "https://apps.example.com/" + name, Rules: rules}, env, Collaborators{
		Router: &mockRouter{},
		Effect: &mockEffect{},
		Bus:    &mockBus{},
	})
}

func TestWriteIgnoredWhileInactive(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)

	if ok := s.Set("counter", 1); !ok {
		t.Error("inactive write must still report success")
	}
	if v, found := s.Get("counter"); found || v != nil {
		t.Errorf("inactive write should not land: got %v, %v", v, found)
	}
}

func TestBasicWriteIsolation(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("counter", 1)
	if v, _ := s.Get("counter"); v != 1 {
		t.Errorf("Get(counter) = %v, want 1", v)
	}
	if env.Real().Has("counter") {
		t.Error("plain write must not leak to the real global")
	}
}

func TestScopedKeysNeverTouchRealGlobal(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("jQuery", "host-jquery")

	s := newTestSandbox("app1", env, policy.Rule{
		ScopeProperties:  []string{"moment"},
		EscapeProperties: []string{"moment"}, // scoped wins
	})
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Reads never fall through.
	if _, found := s.Get("jQuery"); found {
		t.Error("scoped read must not fall through to the real global")
	}
	if s.Has("jQuery") {
		t.Error("scoped containment must not consult the real global")
	}

	// Writes never mirror, even when the key is also escape-configured.
	s.Set("moment", "lib")
	if env.Real().Has("moment") {
		t.Error("scoped write leaked to the real global")
	}
	if v, _ := s.Get("moment"); v != "lib" {
		t.Errorf("scoped key should resolve on the virtual object, got %v", v)
	}
}

func TestEscapeKeyMirrorsAndRollsBack(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env, policy.Rule{EscapeProperties: []string{"counter"}})

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("counter", 1)
	if v, _ := s.Get("counter"); v != 1 {
		t.Errorf("proxy read = %v, want 1", v)
	}
	if v, _ := env.Real().Get("counter"); v != 1 {
		t.Errorf("escaped write should mirror: real global counter = %v", v)
	}

	if err := s.Stop(false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if env.Real().Has("counter") {
		t.Error("escaped key must be removed from the real global on stop")
	}
}

func TestEscapeNeverClaimsIndependentlyOwnedKeys(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("telemetry", "host-owned")

	s := newTestSandbox("app1", env, policy.Rule{EscapeProperties: []string{"telemetry"}})
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("telemetry", "app-value")
	if v, _ := env.Real().Get("telemetry"); v != "app-value" {
		t.Errorf("escape write should mirror: got %v", v)
	}

	if err := s.Stop(false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !env.Real().Has("telemetry") {
		t.Error("stop must not strip a key the real global owned before the sandbox")
	}
}

func TestStaticEscapeOnlyWhenRealGlobalLacksKey(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("System", "loader")
	if v, _ := env.Real().Get("System"); v != "loader" {
		t.Errorf("static escape should mirror when absent: got %v", v)
	}

	// Second sandbox must not clobber the singleton.
	s2 := newTestSandbox("app2", env)
	if err := s2.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s2.Set("System", "other-loader")
	if v, _ := env.Real().Get("System"); v != "loader" {
		t.Errorf("static escape must not overwrite an existing key: got %v", v)
	}
	if v, _ := s2.Get("System"); v != "other-loader" {
		t.Errorf("second sandbox should still see its own value: got %v", v)
	}
}

func TestSetterForcedKeyWritesRealGlobalOnly(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("location", "https://example.com/next")
	if v, _ := env.Real().Get("location"); v != "https://example.com/next" {
		t.Errorf("setter-forced write should hit the real global: got %v", v)
	}

	injected := s.InjectedKeys()
	for _, k := range injected {
		if k == "location" {
			t.Error("setter-forced key must not be tracked as injected")
		}
	}
}

func TestDescriptorShapePreservedOnShadow(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Define("hostVersion", global.Descriptor{
		Value:        "1.0",
		Writable:     false,
		Enumerable:   false,
		Configurable: true,
	})

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("hostVersion", "2.0")

	d, ok := s.GetOwnDescriptor("hostVersion")
	if !ok {
		t.Fatal("descriptor missing after shadow write")
	}
	if d.Writable || d.Enumerable || !d.Configurable {
		t.Errorf("descriptor shape not preserved: %+v", d)
	}
	if d.Value != "2.0" {
		t.Errorf("shadow value = %v, want 2.0", d.Value)
	}
	if v, _ := env.Real().Get("hostVersion"); v != "1.0" {
		t.Errorf("real global value must be untouched, got %v", v)
	}
}

func TestWritableInferredFromSetter(t *testing.T) {
	env, _, _ := newTestEnv()

	backing := types.Value("init")
	env.Real().Define("accessor", global.Descriptor{
		Enumerable:   true,
		Configurable: true,
		Getter:       func() types.Value { return backing },
		Setter:       func(v types.Value) { backing = v },
	})

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("accessor", "shadowed")
	d, _ := s.GetOwnDescriptor("accessor")
	if !d.Writable {
		t.Error("writability should be inferred true when the source has a setter")
	}
	if backing != types.Value("init") {
		t.Error("shadow write must not run the real global setter")
	}
}

func TestFunctionReboundOnReadThrough(t *testing.T) {
	env, _, _ := newTestEnv()

	var receiver types.Value
	env.Real().Set("getSelf", types.Fn(func(recv types.Value, args ...types.Value) types.Value {
		receiver = recv
		return "ok"
	}))

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	v, found := s.Get("getSelf")
	if !found {
		t.Fatal("function should read through")
	}
	fn, isFn := v.(types.Fn)
	if !isFn {
		t.Fatalf("read-through value is %T, want types.Fn", v)
	}

	fn(s, "arg")
	if receiver != types.Value(env.Real()) {
		t.Error("invocation receiver must be the real global, not the proxy")
	}

	// Identity is stable across reads of the same underlying callable.
	v2, _ := s.Get("getSelf")
	if _, isFn := v2.(types.Fn); !isFn {
		t.Fatal("second read should also be a callable")
	}
}

func TestGetOwnDescriptorCoercesConfigurable(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Define("frozen", global.Descriptor{Value: 1, Configurable: false, Enumerable: true})

	s := newTestSandbox("app1", env)
	d, ok := s.GetOwnDescriptor("frozen")
	if !ok {
		t.Fatal("descriptor should bridge from the real global")
	}
	if !d.Configurable {
		t.Error("real-global descriptor must be presented as configurable")
	}
}

func TestDefinePropertyFollowsRecordedOrigin(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("shared", 1)

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Query records real-global origin; the paired define lands there.
	if _, ok := s.GetOwnDescriptor("shared"); !ok {
		t.Fatal("descriptor query failed")
	}
	s.DefineProperty("shared", global.Descriptor{Value: 2, Writable: true, Enumerable: true, Configurable: true})
	if v, _ := env.Real().Get("shared"); v != 2 {
		t.Errorf("define should follow recorded origin, real global = %v", v)
	}

	// Unqueried keys default to the virtual object.
	s.DefineProperty("fresh", global.Descriptor{Value: 3, Writable: true, Enumerable: true, Configurable: true})
	if env.Real().Has("fresh") {
		t.Error("unrecorded define must target the virtual object")
	}
	if v, _ := s.Get("fresh"); v != 3 {
		t.Errorf("virtual define lost: %v", v)
	}
}

func TestOwnKeysUnionOrder(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("a", 1)
	env.Real().Set("b", 2)

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Set("b", 20) // shadows, must not duplicate
	s.Set("c", 3)

	keys := s.OwnKeys()

	pos := make(map[string]int, len(keys))
	count := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, seen := pos[k]; !seen {
			pos[k] = i
		}
		count[k]++
	}
	if count["b"] != 1 {
		t.Errorf("key b duplicated in OwnKeys: %v", keys)
	}
	if !(pos["a"] < pos["c"] && pos["b"] < pos["c"]) {
		t.Errorf("real-global keys must precede target-only keys: %v", keys)
	}
}

func TestDeleteNonDestructive(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("hostKey", "host")

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if ok := s.Delete("hostKey"); !ok {
		t.Error("delete of a perceived-inherited key must report success")
	}
	if !env.Real().Has("hostKey") {
		t.Error("delete must never strip real-global-only keys")
	}

	// Owned keys are removed with their bookkeeping.
	s.Set("mine", 1)
	s.Delete("mine")
	if s.Has("mine") {
		t.Error("owned key should be gone")
	}
	for _, k := range s.InjectedKeys() {
		if k == "mine" {
			t.Error("injected tracking should drop deleted keys")
		}
	}
}

func TestDeleteRemovesEscapedKeyFromRealGlobal(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env, policy.Rule{EscapeProperties: []string{"shared"}})
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Set("shared", 1)
	if !env.Real().Has("shared") {
		t.Fatal("escape write should have mirrored")
	}

	s.Delete("shared")
	if env.Real().Has("shared") {
		t.Error("deleting an escaped key should also remove the mirror")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	env, capture, patcher := newTestEnv()
	s := newTestSandbox("app1", env)

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start("/"); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if capture.installs != 1 || patcher.installs != 1 {
		t.Errorf("shared effects installed %d/%d times, want once", capture.installs, patcher.installs)
	}
	if env.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1", env.ActiveCount())
	}

	if err := s.Stop(false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(false); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if capture.removes != 1 || patcher.removes != 1 {
		t.Errorf("shared effects removed %d/%d times, want once", capture.removes, patcher.removes)
	}
	if env.ActiveCount() != 0 {
		t.Errorf("active count = %d, want 0", env.ActiveCount())
	}
}

func TestSharedEffectsRefCountedAcrossSandboxes(t *testing.T) {
	env, capture, _ := newTestEnv()
	s1 := newTestSandbox("app1", env)
	s2 := newTestSandbox("app2", env)

	if err := s1.Start("/"); err != nil {
		t.Fatalf("app1 start: %v", err)
	}
	if err := s2.Start("/"); err != nil {
		t.Fatalf("app2 start: %v", err)
	}
	if capture.installs != 1 {
		t.Errorf("document capture installed %d times with two sandboxes, want 1", capture.installs)
	}

	if err := s1.Stop(false); err != nil {
		t.Fatalf("app1 stop: %v", err)
	}
	if capture.removes != 0 {
		t.Error("capture must stay installed while app2 is active")
	}

	if err := s2.Stop(false); err != nil {
		t.Fatalf("app2 stop: %v", err)
	}
	if capture.removes != 1 {
		t.Errorf("capture removed %d times after last stop, want 1", capture.removes)
	}
}

func TestStopRollsBackInjectedKeysAndCollaborators(t *testing.T) {
	env, _, _ := newTestEnv()
	effect := &mockEffect{}
	bus := &mockBus{}
	router := &mockRouter{}
	s := New(Config{Name: "app1", URL: "https://apps.example.com/app1"}, env, Collaborators{
		Router: router,
		Effect: effect,
		Bus:    bus,
	})

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Set("a", 1)
	s.Set("b", 2)

	if err := s.Stop(false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if v, found := s.Get("a"); found || v != nil {
		t.Errorf("injected key should be rolled back, got %v, %v", v, found)
	}
	if len(s.InjectedKeys()) != 0 {
		t.Errorf("injected tracking should be empty, got %v", s.InjectedKeys())
	}
	if effect.releases != 1 {
		t.Errorf("effect released %d times, want 1", effect.releases)
	}
	if bus.cleared != 1 {
		t.Errorf("bus cleared %d times, want 1", bus.cleared)
	}
	if router.clears != 1 {
		t.Errorf("router cleared %d times, want 1", router.clears)
	}
}

func TestStopKeepRouteState(t *testing.T) {
	env, _, _ := newTestEnv()
	router := &mockRouter{}
	s := New(Config{Name: "app1", URL: "https://apps.example.com/app1"}, env, Collaborators{Router: router})

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(true); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if router.clears != 0 {
		t.Error("keepRouteState must skip the router state-clearing entry point")
	}
}

func TestUmdSnapshotRoundTrip(t *testing.T) {
	env, _, _ := newTestEnv()
	effect := &mockEffect{}
	bus := &mockBus{}
	s := New(Config{Name: "app1", URL: "https://apps.example.com/app1", UMD: true}, env, Collaborators{
		Router: &mockRouter{},
		Effect: effect,
		Bus:    bus,
	})

	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Set("state", "mounted")
	s.Set("count", 7)

	if err := s.RecordUmdSnapshot(); err != nil {
		t.Fatalf("RecordUmdSnapshot failed: %v", err)
	}
	if effect.records != 1 || bus.snapshots != 1 {
		t.Error("snapshot collaborator hooks not invoked")
	}
	if !s.UMD() {
		t.Error("record should mark singleton mode")
	}

	// Mutate live values between record and rebuild.
	s.Set("state", "corrupted")
	s.Delete("count")

	if err := s.RebuildUmdSnapshot(); err != nil {
		t.Fatalf("RebuildUmdSnapshot failed: %v", err)
	}
	if v, _ := s.Get("state"); v != "mounted" {
		t.Errorf("rebuild should restore recorded value, got %v", v)
	}
	if v, _ := s.Get("count"); v != 7 {
		t.Errorf("rebuild should restore deleted key, got %v", v)
	}
	if effect.rebuilds != 1 || bus.rebuilds != 1 {
		t.Error("rebuild collaborator hooks not invoked")
	}
}

func TestRebuildBeforeRecordFails(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)

	if err := s.RebuildUmdSnapshot(); !errors.Is(err, ErrSnapshotNotRecorded) {
		t.Errorf("expected ErrSnapshotNotRecorded, got %v", err)
	}
}

func TestIdentityFieldsOnVirtualGlobal(t *testing.T) {
	env, _, _ := newTestEnv()
	s := newTestSandbox("app1", env)
	if err := s.Start("/tenant"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if v, _ := s.Get(KeyEnvironment); v != true {
		t.Error("environment flag missing")
	}
	if v, _ := s.Get(KeyAppName); v != "app1" {
		t.Errorf("app name field = %v", v)
	}
	if v, _ := s.Get(KeyBaseRoute); v != "/tenant" {
		t.Errorf("base route field = %v", v)
	}
	if v, _ := s.Get(KeyWindow); v != types.Value(s) {
		t.Error("self reference should resolve to the sandbox")
	}

	// Reserved keys are invisible to the real global.
	if env.Real().Has(KeyAppName) {
		t.Error("identity fields leaked to the real global")
	}
}

func TestLegacyPolyfillPatchOnStart(t *testing.T) {
	env, _, _ := newTestEnv()
	env.Real().Set("_babelPolyfill", true)

	s := newTestSandbox("app1", env)
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if v, _ := env.Real().Get("_babelPolyfill"); v != false {
		t.Errorf("legacy polyfill flag should be forced false, got %v", v)
	}
}

func TestCurrentAppTracking(t *testing.T) {
	env, _, _ := newTestEnv()
	s1 := newTestSandbox("app1", env)
	s2 := newTestSandbox("app2", env)

	s1.Get("anything")
	if env.CurrentApp() != "app1" {
		t.Errorf("current app = %q, want app1", env.CurrentApp())
	}

	s2.Get("anything")
	if env.CurrentApp() != "app2" {
		t.Errorf("current app = %q, want app2", env.CurrentApp())
	}
}

func TestSharedEffectInstallFailurePropagates(t *testing.T) {
	capture := &mockShared{fail: errors.New("capture broken")}
	env := NewEnv(global.NewStore(), capture, nil)
	s := newTestSandbox("app1", env)

	if err := s.Start("/"); err == nil {
		t.Error("capture install failure should propagate from Start")
	}
	if s.Active() {
		t.Error("sandbox must stay inactive after a failed start")
	}
	if env.ActiveCount() != 0 {
		t.Errorf("active count = %d after failed install, want 0", env.ActiveCount())
	}

	capture.fail = nil
	if err := s.Start("/"); err != nil {
		t.Fatalf("Start after install recovery: %v", err)
	}
	if capture.installs != 1 || env.ActiveCount() != 1 {
		t.Errorf("recovered start: installs=%d count=%d, want 1/1", capture.installs, env.ActiveCount())
	}
}

type failingRouter struct {
	mockRouter
}

func (f *failingRouter) InitRouteState(name, url string, v *global.Object) error {
	return errors.New("route table unavailable")
}

func TestStopAfterFailedStartLeavesSharedEffectsAlone(t *testing.T) {
	env, capture, _ := newTestEnv()
	s1 := newTestSandbox("app1", env)
	if err := s1.Start("/"); err != nil {
		t.Fatalf("app1 start: %v", err)
	}

	s2 := New(Config{Name: "app2", URL: "https://apps.example.com/app2"}, env, Collaborators{
		Router: &failingRouter{},
		Effect: &mockEffect{},
		Bus:    &mockBus{},
	})
	if err := s2.Start("/"); err == nil {
		t.Fatal("router init failure should propagate from Start")
	}
	if s2.Active() {
		t.Error("sandbox must stay inactive after a failed start")
	}
	if env.ActiveCount() != 1 {
		t.Errorf("active count = %d after failed start, want 1", env.ActiveCount())
	}

	if err := s2.Stop(true); err != nil {
		t.Fatalf("stop after failed start: %v", err)
	}
	if capture.removes != 0 {
		t.Errorf("capture removed %d times while app1 is active, want 0", capture.removes)
	}
	if env.ActiveCount() != 1 {
		t.Errorf("active count = %d after no-op stop, want 1", env.ActiveCount())
	}
}

func TestPatcherInstallFailureUnwindsCapture(t *testing.T) {
	capture := &mockShared{}
	patcher := &mockShared{fail: errors.New("prototype patch broken")}
	env := NewEnv(global.NewStore(), capture, patcher)
	s := newTestSandbox("app1", env)

	if err := s.Start("/"); err == nil {
		t.Error("patcher install failure should propagate from Start")
	}
	if capture.removes != 1 {
		t.Errorf("capture removed %d times after patcher failure, want 1", capture.removes)
	}
	if env.ActiveCount() != 0 {
		t.Errorf("active count = %d after failed install, want 0", env.ActiveCount())
	}
}
