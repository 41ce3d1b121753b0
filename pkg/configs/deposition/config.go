package deposition

import (
	"net/url"
	"regexp"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

// Config is the sealed configuration of the deposition.
//
// to get `Config` instance, use `LoadConfig`, `Unmarshal` or `TrySeal(*ConfigMarshall)`.
type Config struct {
	database      string
	server        *ServerConfig
	ena           *ENAConfig
	visibility    *VisibilityConfig
	loculus       *LoculusConfig
	organisms     map[string]*OrganismConfig
	sampleMapping *SampleMappingConfig
	loops         *LoopsConfig
	escalation    *EscalationConfig
	payloads      *PayloadsConfig
}

// Connection string for database: postgres://... or sqlite:///path/to/file
func (c *Config) Database() string { return c.database }

func (c *Config) Server() *ServerConfig { return c.server }

func (c *Config) ENA() *ENAConfig { return c.ena }

func (c *Config) Visibility() *VisibilityConfig { return c.visibility }

func (c *Config) Loculus() *LoculusConfig { return c.loculus }

// Organisms are keyed by organism names of the host platform.
func (c *Config) Organisms() map[string]*OrganismConfig { return c.organisms }

func (c *Config) SampleMapping() *SampleMappingConfig { return c.sampleMapping }

func (c *Config) Loops() *LoopsConfig { return c.loops }

func (c *Config) Escalation() *EscalationConfig { return c.escalation }

func (c *Config) Payloads() *PayloadsConfig { return c.payloads }

// Configuration for the ops server.
type ServerConfig struct {
	port     int32
	logLevel string
}

func (s *ServerConfig) Port() int32 { return s.port }

// one of debug, info, warn, error or off.
func (s *ServerConfig) LogLevel() string { return s.logLevel }

// Configuration for the archive.
type ENAConfig struct {
	submitURL   string
	assemblyURL string
	reportURL   string
	username    string
	password    string
	timeout     time.Duration
	checklist   string
	holdUntil   string
}

func (e *ENAConfig) SubmitURL() string   { return e.submitURL }
func (e *ENAConfig) AssemblyURL() string { return e.assemblyURL }
func (e *ENAConfig) ReportURL() string   { return e.reportURL }
func (e *ENAConfig) Username() string    { return e.username }
func (e *ENAConfig) Password() string    { return e.password }

// timeout of each request to the archive.
func (e *ENAConfig) Timeout() time.Duration { return e.timeout }

// sample checklist. default: ERC000033 (virus pathogen)
func (e *ENAConfig) Checklist() string { return e.checklist }

// YYYY-MM-DD until when submissions are kept private. Empty means "release immediately".
func (e *ENAConfig) HoldUntil() string { return e.holdUntil }

// URL templates of browse endpoints.
type Endpoints struct {
	project    string
	sample     string
	nucleotide string
	genome     string
}

func (e *Endpoints) Project() string    { return e.project }
func (e *Endpoints) Sample() string     { return e.sample }
func (e *Endpoints) Nucleotide() string { return e.nucleotide }
func (e *Endpoints) Genome() string     { return e.genome }

type VisibilityConfig struct {
	ena       *Endpoints
	ncbi      *Endpoints
	timeout   time.Duration
	cacheSize int
}

func (v *VisibilityConfig) ENA() *Endpoints        { return v.ena }
func (v *VisibilityConfig) NCBI() *Endpoints       { return v.ncbi }
func (v *VisibilityConfig) Timeout() time.Duration { return v.timeout }

// upper bound of cached lookups in a sweep.
func (v *VisibilityConfig) CacheSize() int { return v.cacheSize }

// Configuration for the host platform.
type LoculusConfig struct {
	backendURL string
	tokenURL   string
	clientID   string
	username   string
	password   string
	websiteURL string
	timeout    time.Duration
}

func (l *LoculusConfig) BackendURL() string     { return l.backendURL }
func (l *LoculusConfig) TokenURL() string       { return l.tokenURL }
func (l *LoculusConfig) ClientID() string       { return l.clientID }
func (l *LoculusConfig) Username() string       { return l.username }
func (l *LoculusConfig) Password() string       { return l.password }
func (l *LoculusConfig) Timeout() time.Duration { return l.timeout }

// base url of sequence pages linked from samples. It can be empty.
func (l *LoculusConfig) WebsiteURL() string { return l.websiteURL }

type OrganismConfig struct {
	scientificName string
	taxonID        int64
	moleculeType   string
	topology       string
	segments       []string
}

func (o *OrganismConfig) ScientificName() string { return o.scientificName }
func (o *OrganismConfig) TaxonID() int64         { return o.taxonID }
func (o *OrganismConfig) MoleculeType() string   { return o.moleculeType }
func (o *OrganismConfig) Topology() string       { return o.topology }

// segment names in ascending order. ["main"] for unsegmented organisms.
func (o *OrganismConfig) Segments() []string { return o.segments }

// Mapping of a sample attribute.
type AttributeConfig struct {
	fields   []string
	function string
	args     []*regexp.Regexp
}

// metadata fields to be mapped.
func (a *AttributeConfig) Fields() []string { return a.fields }

// "" or "match".
func (a *AttributeConfig) Function() string { return a.function }

// case insensitive patterns for "match".
func (a *AttributeConfig) Args() []*regexp.Regexp { return a.args }

type SampleMappingConfig struct {
	attributes        map[string]*AttributeConfig
	mandatoryDefaults map[string]string
}

// attribute tag -> mapping
func (s *SampleMappingConfig) Attributes() map[string]*AttributeConfig { return s.attributes }

// attribute tag -> value used when no value is mapped
func (s *SampleMappingConfig) MandatoryDefaults() map[string]string { return s.mandatoryDefaults }

type LoopsConfig struct {
	policy               recurring.Policy
	assemblyPollInterval time.Duration
	writeAttempts        int
	timeout              time.Duration
}

func (l *LoopsConfig) Policy() recurring.Policy { return l.policy }

// minimum interval between polling the archive for WAITING assemblies.
func (l *LoopsConfig) AssemblyPollInterval() time.Duration { return l.assemblyPollInterval }

// how many times a write after archive calls is tried.
func (l *LoopsConfig) WriteAttempts() int { return l.writeAttempts }

// timeout of each sweep.
func (l *LoopsConfig) Timeout() time.Duration { return l.timeout }

type EscalationConfig struct {
	webhookURL          *url.URL
	submittingThreshold time.Duration
	waitingThreshold    time.Duration
	cooldown            time.Duration
}

// nil when alerts are not sent anywhere.
func (e *EscalationConfig) WebhookURL() *url.URL { return e.webhookURL }

func (e *EscalationConfig) SubmittingThreshold() time.Duration { return e.submittingThreshold }
func (e *EscalationConfig) WaitingThreshold() time.Duration    { return e.waitingThreshold }
func (e *EscalationConfig) Cooldown() time.Duration            { return e.cooldown }

type PayloadsConfig struct {
	driver    string
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
	dir       string
}

// none, fs or s3.
func (p *PayloadsConfig) Driver() string   { return p.driver }
func (p *PayloadsConfig) Bucket() string   { return p.bucket }
func (p *PayloadsConfig) Region() string   { return p.region }
func (p *PayloadsConfig) Endpoint() string { return p.endpoint }
func (p *PayloadsConfig) PathStyle() bool  { return p.pathStyle }
func (p *PayloadsConfig) Dir() string      { return p.dir }
