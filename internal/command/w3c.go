package command

import "net/http"

var w3c = newRegistry(DialectW3C, map[string]Info{
	NewSession: {http.MethodPost, "/session"},
	Quit:       {http.MethodDelete, sessionPath},
	GetStatus:  {http.MethodGet, "/status"},

	Navigate:      {http.MethodPost, sessionPath + "/url"},
	GetCurrentURL: {http.MethodGet, sessionPath + "/url"},
	GoBack:        {http.MethodPost, sessionPath + "/back"},
	GoForward:     {http.MethodPost, sessionPath + "/forward"},
	Refresh:       {http.MethodPost, sessionPath + "/refresh"},
	GetTitle:      {http.MethodGet, sessionPath + "/title"},
	GetPageSource: {http.MethodGet, sessionPath + "/source"},

	Screenshot:        {http.MethodGet, sessionPath + "/screenshot"},
	ElementScreenshot: {http.MethodGet, sessionPath + "/element/{id}/screenshot"},

	FindElement:       {http.MethodPost, sessionPath + "/element"},
	FindElements:      {http.MethodPost, sessionPath + "/elements"},
	FindChildElement:  {http.MethodPost, sessionPath + "/element/{id}/element"},
	FindChildElements: {http.MethodPost, sessionPath + "/element/{id}/elements"},
	GetActiveElement:  {http.MethodGet, sessionPath + "/element/active"},

	ClickElement:        {http.MethodPost, sessionPath + "/element/{id}/click"},
	ClearElement:        {http.MethodPost, sessionPath + "/element/{id}/clear"},
	SendKeysToElement:   {http.MethodPost, sessionPath + "/element/{id}/value"},
	GetElementText:      {http.MethodGet, sessionPath + "/element/{id}/text"},
	GetElementTagName:   {http.MethodGet, sessionPath + "/element/{id}/name"},
	IsElementSelected:   {http.MethodGet, sessionPath + "/element/{id}/selected"},
	IsElementEnabled:    {http.MethodGet, sessionPath + "/element/{id}/enabled"},
	IsElementDisplayed:  {http.MethodGet, sessionPath + "/element/{id}/displayed"},
	GetElementRect:      {http.MethodGet, sessionPath + "/element/{id}/rect"},
	GetElementAttribute: {http.MethodGet, sessionPath + "/element/{id}/attribute/{name}"},
	GetElementProperty:  {http.MethodGet, sessionPath + "/element/{id}/property/{name}"},
	GetElementCSSValue:  {http.MethodGet, sessionPath + "/element/{id}/css/{propertyName}"},

	ExecuteScript:      {http.MethodPost, sessionPath + "/execute/sync"},
	ExecuteAsyncScript: {http.MethodPost, sessionPath + "/execute/async"},
	SetTimeouts:        {http.MethodPost, sessionPath + "/timeouts"},

	GetWindowHandle:     {http.MethodGet, sessionPath + "/window"},
	GetWindowHandles:    {http.MethodGet, sessionPath + "/window/handles"},
	SwitchToWindow:      {http.MethodPost, sessionPath + "/window"},
	CloseWindow:         {http.MethodDelete, sessionPath + "/window"},
	SwitchToFrame:       {http.MethodPost, sessionPath + "/frame"},
	SwitchToParentFrame: {http.MethodPost, sessionPath + "/frame/parent"},
	GetWindowRect:       {http.MethodGet, sessionPath + "/window/rect"},
	SetWindowRect:       {http.MethodPost, sessionPath + "/window/rect"},
	MaximizeWindow:      {http.MethodPost, sessionPath + "/window/maximize"},
	MinimizeWindow:      {http.MethodPost, sessionPath + "/window/minimize"},
	FullscreenWindow:    {http.MethodPost, sessionPath + "/window/fullscreen"},

	GetAllCookies:    {http.MethodGet, sessionPath + "/cookie"},
	GetCookie:        {http.MethodGet, sessionPath + "/cookie/{name}"},
	AddCookie:        {http.MethodPost, sessionPath + "/cookie"},
	DeleteCookie:     {http.MethodDelete, sessionPath + "/cookie/{name}"},
	DeleteAllCookies: {http.MethodDelete, sessionPath + "/cookie"},

	AcceptAlert:   {http.MethodPost, sessionPath + "/alert/accept"},
	DismissAlert:  {http.MethodPost, sessionPath + "/alert/dismiss"},
	GetAlertText:  {http.MethodGet, sessionPath + "/alert/text"},
	SetAlertValue: {http.MethodPost, sessionPath + "/alert/text"},

	Actions:        {http.MethodPost, sessionPath + "/actions"},
	ReleaseActions: {http.MethodDelete, sessionPath + "/actions"},
})

// W3CRegistry returns the standardized-dialect registry.
func W3CRegistry() *Registry {
	return w3c
}

// RegistryFor returns the registry of dialect d.
func RegistryFor(d Dialect) *Registry {
	if d == DialectW3C {
		return w3c
	}
	return legacy
}
