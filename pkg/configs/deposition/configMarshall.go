package deposition

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `XxxMarshall` in this package are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type ConfigMarshall struct {
	Database      string                             `yaml:"database"`
	Server        *ServerConfigMarshall              `yaml:"server,omitempty"`
	ENA           *ENAConfigMarshall                 `yaml:"ena"`
	Visibility    *VisibilityConfigMarshall          `yaml:"visibility"`
	Loculus       *LoculusConfigMarshall             `yaml:"loculus"`
	Organisms     map[string]*OrganismConfigMarshall `yaml:"organisms"`
	SampleMapping *SampleMappingConfigMarshall       `yaml:"sampleMapping,omitempty"`
	Loops         *LoopsConfigMarshall               `yaml:"loops,omitempty"`
	Escalation    *EscalationConfigMarshall          `yaml:"escalation,omitempty"`
	Payloads      *PayloadsConfigMarshall            `yaml:"payloads,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	organisms := map[string]*OrganismConfig{}
	if len(c.Organisms) == 0 {
		panic(path + ".organisms is required")
	}
	for name, o := range c.Organisms {
		p := path + ".organisms." + name
		organisms[name] = nonnil(o, p).trySeal(p)
	}

	return &Config{
		database:      database(required(c.Database, path+".database"), path+".database"),
		server:        orZero(c.Server).trySeal(path + ".server"),
		ena:           nonnil(c.ENA, path+".ena").trySeal(path + ".ena"),
		visibility:    orZero(c.Visibility).trySeal(path + ".visibility"),
		loculus:       nonnil(c.Loculus, path+".loculus").trySeal(path + ".loculus"),
		organisms:     organisms,
		sampleMapping: orZero(c.SampleMapping).trySeal(path + ".sampleMapping"),
		loops:         orZero(c.Loops).trySeal(path + ".loops"),
		escalation:    orZero(c.Escalation).trySeal(path + ".escalation"),
		payloads:      orZero(c.Payloads).trySeal(path + ".payloads"),
	}
}

type ServerConfigMarshall struct {
	Port     int32  `yaml:"port,omitempty"`
	LogLevel string `yaml:"loglevel,omitempty"`
}

func (s *ServerConfigMarshall) trySeal(path string) *ServerConfig {
	port := s.Port
	if port == 0 {
		port = 8080
	}
	level := s.LogLevel
	if level == "" {
		level = "info"
	}
	return &ServerConfig{
		port:     port,
		logLevel: oneof(level, path+".loglevel", "debug", "info", "warn", "error", "off"),
	}
}

type ENAConfigMarshall struct {
	SubmitURL   string        `yaml:"submitUrl"`
	AssemblyURL string        `yaml:"assemblyUrl"`
	ReportURL   string        `yaml:"reportUrl"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Checklist   string        `yaml:"checklist,omitempty"`
	HoldUntil   string        `yaml:"holdUntil,omitempty"`
}

func (e *ENAConfigMarshall) trySeal(path string) *ENAConfig {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	checklist := e.Checklist
	if checklist == "" {
		checklist = "ERC000033"
	}
	if e.HoldUntil != "" {
		if _, err := time.Parse(time.DateOnly, e.HoldUntil); err != nil {
			panic(fmt.Errorf("%s.holdUntil should be YYYY-MM-DD: %w", path, err))
		}
	}
	return &ENAConfig{
		submitURL:   httpURL(e.SubmitURL, path+".submitUrl"),
		assemblyURL: httpURL(e.AssemblyURL, path+".assemblyUrl"),
		reportURL:   httpURL(e.ReportURL, path+".reportUrl"),
		username:    required(e.Username, path+".username"),
		password:    required(e.Password, path+".password"),
		timeout:     positive(timeout, path+".timeout"),
		checklist:   checklist,
		holdUntil:   e.HoldUntil,
	}
}

type EndpointsMarshall struct {
	Project    string `yaml:"project,omitempty"`
	Sample     string `yaml:"sample,omitempty"`
	Nucleotide string `yaml:"nucleotide,omitempty"`
	Genome     string `yaml:"genome,omitempty"`
}

type VisibilityConfigMarshall struct {
	ENA       *EndpointsMarshall `yaml:"ena,omitempty"`
	NCBI      *EndpointsMarshall `yaml:"ncbi,omitempty"`
	Timeout   time.Duration      `yaml:"timeout,omitempty"`
	CacheSize int                `yaml:"cacheSize,omitempty"`
}

var (
	defaultENAEndpoints = EndpointsMarshall{
		Project:    "https://www.ebi.ac.uk/ena/browser/api/xml/%s",
		Sample:     "https://www.ebi.ac.uk/ena/browser/api/xml/%s",
		Nucleotide: "https://www.ebi.ac.uk/ena/browser/api/xml/%s",
		Genome:     "https://www.ebi.ac.uk/ena/browser/api/xml/%s",
	}
	defaultNCBIEndpoints = EndpointsMarshall{
		Project:    "https://www.ncbi.nlm.nih.gov/bioproject/%s",
		Sample:     "https://www.ncbi.nlm.nih.gov/biosample/%s",
		Nucleotide: "https://www.ncbi.nlm.nih.gov/nuccore/%s",
		Genome:     "https://www.ncbi.nlm.nih.gov/datasets/genome/%s",
	}
)

func (e *EndpointsMarshall) trySeal(path string, defaults EndpointsMarshall) *Endpoints {
	pick := func(v, d, p string) string {
		if v == "" {
			v = d
		}
		return urlTemplate(v, p)
	}
	return &Endpoints{
		project:    pick(e.Project, defaults.Project, path+".project"),
		sample:     pick(e.Sample, defaults.Sample, path+".sample"),
		nucleotide: pick(e.Nucleotide, defaults.Nucleotide, path+".nucleotide"),
		genome:     pick(e.Genome, defaults.Genome, path+".genome"),
	}
}

func (v *VisibilityConfigMarshall) trySeal(path string) *VisibilityConfig {
	timeout := v.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	cacheSize := v.CacheSize
	if cacheSize == 0 {
		cacheSize = 4096
	}
	return &VisibilityConfig{
		ena:       orZero(v.ENA).trySeal(path+".ena", defaultENAEndpoints),
		ncbi:      orZero(v.NCBI).trySeal(path+".ncbi", defaultNCBIEndpoints),
		timeout:   positive(timeout, path+".timeout"),
		cacheSize: positive(cacheSize, path+".cacheSize"),
	}
}

type LoculusConfigMarshall struct {
	BackendURL string        `yaml:"backendUrl"`
	TokenURL   string        `yaml:"tokenUrl"`
	ClientID   string        `yaml:"clientId,omitempty"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	WebsiteURL string        `yaml:"websiteUrl,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

func (l *LoculusConfigMarshall) trySeal(path string) *LoculusConfig {
	clientID := l.ClientID
	if clientID == "" {
		clientID = "backend-client"
	}
	timeout := l.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	website := ""
	if l.WebsiteURL != "" {
		website = httpURL(l.WebsiteURL, path+".websiteUrl")
	}
	return &LoculusConfig{
		backendURL: httpURL(l.BackendURL, path+".backendUrl"),
		tokenURL:   httpURL(l.TokenURL, path+".tokenUrl"),
		clientID:   clientID,
		username:   required(l.Username, path+".username"),
		password:   required(l.Password, path+".password"),
		websiteURL: website,
		timeout:    positive(timeout, path+".timeout"),
	}
}

type OrganismConfigMarshall struct {
	ScientificName string   `yaml:"scientificName"`
	TaxonID        int64    `yaml:"taxonId"`
	MoleculeType   string   `yaml:"moleculeType,omitempty"`
	Topology       string   `yaml:"topology,omitempty"`
	Segments       []string `yaml:"segments,omitempty"`
}

func (o *OrganismConfigMarshall) trySeal(path string) *OrganismConfig {
	molecule := o.MoleculeType
	if molecule == "" {
		molecule = "genomic RNA"
	}
	topology := o.Topology
	if topology == "" {
		topology = "linear"
	}
	segments := slices.Clone(o.Segments)
	if len(segments) == 0 {
		segments = []string{"main"}
	}
	slices.Sort(segments)
	if len(slices.Compact(slices.Clone(segments))) != len(segments) {
		panic(path + ".segments should not have duplicates")
	}
	return &OrganismConfig{
		scientificName: required(o.ScientificName, path+".scientificName"),
		taxonID:        positive(o.TaxonID, path+".taxonId"),
		moleculeType:   molecule,
		topology:       oneof(topology, path+".topology", "linear", "circular"),
		segments:       segments,
	}
}

type AttributeConfigMarshall struct {
	Fields   []string `yaml:"fields"`
	Function string   `yaml:"function,omitempty"`
	Args     []string `yaml:"args,omitempty"`
}

func (a *AttributeConfigMarshall) trySeal(path string) *AttributeConfig {
	if len(a.Fields) == 0 {
		panic(path + ".fields is required")
	}
	args := []*regexp.Regexp{}
	switch a.Function {
	case "":
	case "match":
		if len(a.Args) == 0 {
			panic(path + ".args is required for function match")
		}
		for i, arg := range a.Args {
			re, err := regexp.Compile("(?i)" + arg)
			if err != nil {
				panic(fmt.Errorf("%s.args[%d] is not a regexp: %w", path, i, err))
			}
			args = append(args, re)
		}
	default:
		panic(fmt.Sprintf("%s.function: unknown function %q (should be one of -- match)", path, a.Function))
	}
	return &AttributeConfig{
		fields:   slices.Clone(a.Fields),
		function: a.Function,
		args:     args,
	}
}

type SampleMappingConfigMarshall struct {
	Attributes        map[string]*AttributeConfigMarshall `yaml:"attributes,omitempty"`
	MandatoryDefaults map[string]string                   `yaml:"mandatoryDefaults,omitempty"`
}

func (s *SampleMappingConfigMarshall) trySeal(path string) *SampleMappingConfig {
	attrs := map[string]*AttributeConfig{}
	for tag, a := range s.Attributes {
		p := path + ".attributes." + tag
		attrs[tag] = nonnil(a, p).trySeal(p)
	}
	defaults := map[string]string{}
	for tag, v := range s.MandatoryDefaults {
		defaults[tag] = v
	}
	return &SampleMappingConfig{attributes: attrs, mandatoryDefaults: defaults}
}

type LoopsConfigMarshall struct {
	Policy               string        `yaml:"policy,omitempty"`
	AssemblyPollInterval time.Duration `yaml:"assemblyPollInterval,omitempty"`
	WriteAttempts        int           `yaml:"writeAttempts,omitempty"`
	Timeout              time.Duration `yaml:"timeout,omitempty"`
}

func (l *LoopsConfigMarshall) trySeal(path string) *LoopsConfig {
	policy := l.Policy
	if policy == "" {
		policy = "forever:30s"
	}
	p, err := recurring.ParsePolicy(policy)
	if err != nil {
		panic(fmt.Errorf("%s.policy: %w", path, err))
	}
	interval := l.AssemblyPollInterval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	attempts := l.WriteAttempts
	if attempts == 0 {
		attempts = 3
	}
	timeout := l.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}
	return &LoopsConfig{
		policy:               p,
		assemblyPollInterval: positive(interval, path+".assemblyPollInterval"),
		writeAttempts:        positive(attempts, path+".writeAttempts"),
		timeout:              positive(timeout, path+".timeout"),
	}
}

type EscalationConfigMarshall struct {
	WebhookURL          string        `yaml:"webhookUrl,omitempty"`
	SubmittingThreshold time.Duration `yaml:"submittingThreshold,omitempty"`
	WaitingThreshold    time.Duration `yaml:"waitingThreshold,omitempty"`
	Cooldown            time.Duration `yaml:"cooldown,omitempty"`
}

func (e *EscalationConfigMarshall) trySeal(path string) *EscalationConfig {
	var hook *url.URL
	if e.WebhookURL != "" {
		u, err := url.Parse(httpURL(e.WebhookURL, path+".webhookUrl"))
		if err != nil {
			panic(fmt.Errorf("%s.webhookUrl: %w", path, err))
		}
		hook = u
	}
	submitting := e.SubmittingThreshold
	if submitting == 0 {
		submitting = 15 * time.Minute
	}
	waiting := e.WaitingThreshold
	if waiting == 0 {
		waiting = 48 * time.Hour
	}
	cooldown := e.Cooldown
	if cooldown == 0 {
		cooldown = 12 * time.Hour
	}
	return &EscalationConfig{
		webhookURL:          hook,
		submittingThreshold: positive(submitting, path+".submittingThreshold"),
		waitingThreshold:    positive(waiting, path+".waitingThreshold"),
		cooldown:            positive(cooldown, path+".cooldown"),
	}
}

type PayloadsConfigMarshall struct {
	Driver    string `yaml:"driver,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"pathStyle,omitempty"`
	Dir       string `yaml:"dir,omitempty"`
}

func (p *PayloadsConfigMarshall) trySeal(path string) *PayloadsConfig {
	driver := p.Driver
	if driver == "" {
		driver = "none"
	}
	conf := &PayloadsConfig{
		driver:    oneof(driver, path+".driver", "none", "fs", "s3"),
		region:    p.Region,
		endpoint:  p.Endpoint,
		pathStyle: p.PathStyle,
	}
	switch driver {
	case "fs":
		conf.dir = required(p.Dir, path+".dir")
	case "s3":
		conf.bucket = required(p.Bucket, path+".bucket")
	}
	return conf
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

// orZero returns v, or pointer to zero value when v is nil.
func orZero[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func positive[T int | int32 | int64 | time.Duration](v T, path string) T {
	if v <= 0 {
		panic(fmt.Sprintf("%s should be positive, but %v", path, v))
	}
	return v
}

func oneof(v string, path string, candidates ...string) string {
	if !slices.Contains(candidates, v) {
		panic(fmt.Sprintf("%s should be one of %s, but %q", path, strings.Join(candidates, "|"), v))
	}
	return v
}

func httpURL(v string, path string) string {
	u, err := url.Parse(required(v, path))
	if err != nil {
		panic(fmt.Errorf("%s is not a url: %w", path, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		panic(fmt.Sprintf("%s should be http(s) url, but %q", path, v))
	}
	return v
}

// urlTemplate validates a url with a "%s" placeholder, and returns it as it is.
func urlTemplate(v string, path string) string {
	if strings.Count(v, "%s") != 1 || strings.Count(v, "%") != 1 {
		panic(fmt.Sprintf(`%s should have exactly one "%%s" for an accession, but %q`, path, v))
	}
	httpURL(strings.Replace(v, "%s", "ACCESSION", 1), path)
	return v
}

func database(v string, path string) string {
	u, err := url.Parse(v)
	if err != nil {
		panic(fmt.Errorf("%s is not a url: %w", path, err))
	}
	switch u.Scheme {
	case "postgres", "postgresql", "sqlite":
		return v
	}
	panic(fmt.Sprintf("%s should be postgres://... or sqlite://..., but %q", path, v))
}
