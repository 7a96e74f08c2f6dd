package spec

// Matrix event types widgets commonly read or write.
const (
	// MRoomCreate https://spec.matrix.org/v1.8/client-server-api/#mroomcreate
	MRoomCreate = "m.room.create"
	// MRoomName https://spec.matrix.org/v1.8/client-server-api/#mroomname
	MRoomName = "m.room.name"
	// MRoomTopic https://spec.matrix.org/v1.8/client-server-api/#mroomtopic
	MRoomTopic = "m.room.topic"
	// MRoomMember https://spec.matrix.org/v1.8/client-server-api/#mroommember
	MRoomMember = "m.room.member"
	// MRoomPowerLevels https://spec.matrix.org/v1.8/client-server-api/#mroompower_levels
	MRoomPowerLevels = "m.room.power_levels"
	// MRoomEncryption https://spec.matrix.org/v1.8/client-server-api/#mroomencryption
	MRoomEncryption = "m.room.encryption"
	// MRoomMessage https://spec.matrix.org/v1.8/client-server-api/#mroommessage
	MRoomMessage = "m.room.message"
	// MRoomRedaction https://spec.matrix.org/v1.8/client-server-api/#mroomredaction
	MRoomRedaction = "m.room.redaction"
	// MReaction https://spec.matrix.org/v1.8/client-server-api/#event-annotations-and-reactions
	MReaction = "m.reaction"
	// MSpaceChild https://spec.matrix.org/v1.8/client-server-api/#mspacechild
	MSpaceChild = "m.space.child"
	// MSpaceParent https://spec.matrix.org/v1.8/client-server-api/#mspaceparent
	MSpaceParent = "m.space.parent"

	// MText is the msgtype of plain text messages.
	MText = "m.text"
)

// Relation types used with ReadEventRelations.
const (
	RelThread     = "m.thread"
	RelAnnotation = "m.annotation"
	RelReplace    = "m.replace"
	RelReference  = "m.reference"
)

// WidgetAPIVersion identifies one direction of the widget postMessage API.
type WidgetAPIVersion string

const (
	// FromWidget marks requests initiated by the widget.
	FromWidget WidgetAPIVersion = "fromWidget"
	// ToWidget marks requests initiated by the host client.
	ToWidget WidgetAPIVersion = "toWidget"
)

// Actions a widget sends to the host client.
const (
	ActionSupportedAPIVersions  = "supported_api_versions"
	ActionContentLoaded         = "content_loaded"
	ActionSendEvent             = "send_event"
	ActionSendToDevice          = "send_to_device"
	ActionGetOpenID             = "get_openid"
	ActionOpenModalWidget       = "open_modal"
	ActionCloseModalWidget      = "close_modal"
	ActionSetModalButtonEnabled = "set_button_enabled"
	ActionSetAlwaysOnScreen     = "set_always_on_screen"
	ActionReadEvents            = "org.matrix.msc2876.read_events"
	ActionNavigate              = "org.matrix.msc2931.navigate"
	ActionRequestCapabilities   = "org.matrix.msc2974.request_capabilities"
	ActionReadRelations         = "org.matrix.msc3869.read_relations"
	ActionUserDirectorySearch   = "org.matrix.msc3973.user_directory_search"
	ActionGetMediaConfig        = "org.matrix.msc4039.get_media_config"
	ActionUploadFile            = "org.matrix.msc4039.upload_file"
)

// Actions the host client sends to a widget. All of them are broadcasts that
// must be replied to.
const (
	ActionCapabilities       = "capabilities"
	ActionNotifyCapabilities = "notify_capabilities"
	ActionOpenIDCredentials  = "openid_credentials"
	ActionWidgetConfig       = "widget_config"
	ActionButtonClicked      = "button_clicked"
	ActionThemeChange        = "theme_change"
	ActionLanguageChange     = "language_change"
	// ActionCloseModal shares its name with ActionCloseModalWidget but travels
	// toWidget, telling the opener that its modal is gone.
	ActionCloseModal = ActionCloseModalWidget
	// ActionSendEventBroadcast and ActionSendToDeviceBroadcast carry events
	// the host observed in the room or on the device.
	ActionSendEventBroadcast    = ActionSendEvent
	ActionSendToDeviceBroadcast = ActionSendToDevice
)

// AnyRoom selects every room the user can see when passed as a room id filter.
const AnyRoom = "*"

// ModalExited is the close-modal data key signalling that the modal was
// dismissed without a result.
const ModalExited = "m.exited"

// ModalExitButton is the id of the implicit button that dismisses a modal.
const ModalExitButton = "m.close"
