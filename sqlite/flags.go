package sqlite

// OpenFlag is the flag word passed to xOpen.
type OpenFlag int32

const (
	OPEN_READONLY      OpenFlag = 0x00000001
	OPEN_READWRITE     OpenFlag = 0x00000002
	OPEN_CREATE        OpenFlag = 0x00000004
	OPEN_DELETEONCLOSE OpenFlag = 0x00000008
	OPEN_EXCLUSIVE     OpenFlag = 0x00000010
	OPEN_MAIN_DB       OpenFlag = 0x00000100
	OPEN_TEMP_DB       OpenFlag = 0x00000200
	OPEN_TRANSIENT_DB  OpenFlag = 0x00000400
	OPEN_MAIN_JOURNAL  OpenFlag = 0x00000800
	OPEN_TEMP_JOURNAL  OpenFlag = 0x00001000
	OPEN_SUBJOURNAL    OpenFlag = 0x00002000
	OPEN_SUPER_JOURNAL OpenFlag = 0x00004000
	OPEN_WAL           OpenFlag = 0x00080000
)

// Has reports whether all bits of f2 are set.
func (f OpenFlag) Has(f2 OpenFlag) bool {
	return f&f2 == f2
}

// AccessFlag is the mode argument of xAccess.
type AccessFlag int32

const (
	ACCESS_EXISTS    AccessFlag = 0
	ACCESS_READWRITE AccessFlag = 1
	ACCESS_READ      AccessFlag = 2
)

// LockLevel is a file lock level.
type LockLevel int32

const (
	LOCK_NONE      LockLevel = 0
	LOCK_SHARED    LockLevel = 1
	LOCK_RESERVED  LockLevel = 2
	LOCK_PENDING   LockLevel = 3
	LOCK_EXCLUSIVE LockLevel = 4
)

func (l LockLevel) String() string {
	switch l {
	case LOCK_NONE:
		return "none"
	case LOCK_SHARED:
		return "shared"
	case LOCK_RESERVED:
		return "reserved"
	case LOCK_PENDING:
		return "pending"
	case LOCK_EXCLUSIVE:
		return "exclusive"
	}
	return "invalid"
}

// SyncFlag is the flags argument of xSync.
type SyncFlag int32

const (
	SYNC_NORMAL   SyncFlag = 0x00002
	SYNC_FULL     SyncFlag = 0x00003
	SYNC_DATAONLY SyncFlag = 0x00010
)

// DeviceCharacteristic is a bit of the xDeviceCharacteristics result.
type DeviceCharacteristic int32

const (
	IOCAP_ATOMIC                DeviceCharacteristic = 0x00000001
	IOCAP_SAFE_APPEND           DeviceCharacteristic = 0x00000200
	IOCAP_SEQUENTIAL            DeviceCharacteristic = 0x00000400
	IOCAP_UNDELETABLE_WHEN_OPEN DeviceCharacteristic = 0x00000800
	IOCAP_POWERSAFE_OVERWRITE   DeviceCharacteristic = 0x00001000
)

// DeleteSyncDirMarker as the syncDir argument of xDelete asks for the
// now-empty parent directories to be removed as well.
const DeleteSyncDirMarker = 0x1234
