package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKeyDefault     = "X-Api-Key" // #nosec G101 - header name constant, not a credential
	HeaderContentType       = "Content-Type"
	HeaderContentDisp       = "Content-Disposition"
	ContentTypeJSON         = "application/json"
	ContentTypeOctetStream  = "application/octet-stream"
	ContentDispositionParam = "filename"
)

// CIS client integration API
const (
	APIBasePath       = "api/v2/ClientIntegration/"
	PathEnvironment   = "Environment"
	PathSubmit        = "Submit"
	PathStatus        = "Status"
	PathDownload      = "Download"
	PathRelease       = "Release"
	FormRepositoryID  = "RepositoryId"
	FormInputFile     = "InputFiles[%d].InputFile"
	FormMetadataName  = "InputFiles[%d].FileMetadata[%d].Name"
	FormMetadataValue = "InputFiles[%d].FileMetadata[%d].Value"
)

// Remote job status values
const (
	StatusCompletedPrefix     = "Completed"
	StatusCompletedSuccessful = "CompletedSuccessful"
)

// Demo metadata attached to every uploaded file that has no explicit metadata.
const (
	DemoMetadataName  = "Go Sample App Submission"
	DemoMetadataValue = "Test file uploaded via Go sample app"
)

// Workspace layout
const (
	ConfigFileName   = "appsettings.json"
	ConfigEnvVar     = "CIS_CONFIG"
	RunLogFileName   = "log.txt"
	JobLogsDirName   = "JobLogs"
	InputDirName     = "Input"
	OutputDirName    = "Output"
	SharedJobLogName = "joblog.txt"
	JobLogNameFormat = "joblog_%d.txt"
	UnknownFileExt   = ".unknown"
)

// Defaults and limits
const (
	DefaultBaseURL            = "https://localhost:60204"
	DefaultAPIKey             = "your-api-key-here" // #nosec G101 - placeholder written to a fresh config file
	DefaultErrorCloseSeconds  = 5
	DefaultPollingRateSeconds = 7
	ErrorSnippetLimit         = 400
)

// UnseparatedJob is the job index used when all input files go into a single job.
const UnseparatedJob = -1
