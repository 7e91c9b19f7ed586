package station

// Symbolic node names from the workstation register map. The registry
// rejects unknown names at startup, so a typo here fails fast instead of
// at first use on the line.
const (
	// System mode and lifecycle commands with their paired status bits.
	NodeSysStartCmd    = "COIL_SYS_START_CMD"
	NodeSysStartStatus = "COIL_SYS_START_STATUS"
	NodeSysStopCmd     = "COIL_SYS_STOP_CMD"
	NodeSysStopStatus  = "COIL_SYS_STOP_STATUS"
	NodeSysResetCmd    = "COIL_SYS_RESET_CMD"
	NodeSysResetStatus = "COIL_SYS_RESET_STATUS"
	NodeSysHandCmd     = "COIL_SYS_HAND_CMD"
	NodeSysHandStatus  = "COIL_SYS_HAND_STATUS"
	NodeSysAutoCmd     = "COIL_SYS_AUTO_CMD"
	NodeSysAutoStatus  = "COIL_SYS_AUTO_STATUS"
	NodeSysInitCmd     = "COIL_SYS_INIT_CMD"
	NodeSysInitStatus  = "COIL_SYS_INIT_STATUS"

	// Message exchange flow control.
	NodeRequestRecMsgStatus  = "COIL_REQUEST_REC_MSG_STATUS"
	NodeRequestSendMsgStatus = "COIL_REQUEST_SEND_MSG_STATUS"
	NodeSendMsgSuccCmd       = "COIL_UNILAB_SEND_MSG_SUCC_CMD"
	NodeRecMsgSuccCmd        = "COIL_UNILAB_REC_MSG_SUCC_CMD"
	NodeSendBottleNum        = "UNILAB_SEND_ELECTROLYTE_BOTTLE_NUM"
	NodeReceBottleNum        = "UNILAB_RECE_ELECTROLYTE_BOTTLE_NUM"
	NodeSendFinishedCmd      = "UNILAB_SEND_FINISHED_CMD"
	NodeReceFinishedCmd      = "UNILAB_RECE_FINISHED_CMD"

	// Batch parameters written before each bottle.
	NodeMsgElectrolyteNum     = "REG_MSG_ELECTROLYTE_NUM"
	NodeMsgElectrolyteUseNum  = "REG_MSG_ELECTROLYTE_USE_NUM"
	NodeMsgAssemblyType       = "REG_MSG_ASSEMBLY_TYPE"
	NodeMsgElectrolyteVolume  = "REG_MSG_ELECTROLYTE_VOLUME"
	NodeMsgAssemblyPressure   = "REG_MSG_ASSEMBLY_PRESSURE"
	NodeMsgNePlateNum         = "REG_MSG_NE_PLATE_NUM"
	NodeMsgNePlateMatrix      = "REG_MSG_NE_PLATE_MATRIX"
	NodeMsgSeparatorNum       = "REG_MSG_SEPARATOR_PLATE_NUM"
	NodeMsgSeparatorMatrix    = "REG_MSG_SEPARATOR_PLATE_MATRIX"
	NodeMsgTipBoxMatrix       = "REG_MSG_TIP_BOX_MATRIX"
	NodeMsgPressMode          = "REG_MSG_PRESS_MODE"
	NodeMsgCleanIgnore        = "REG_MSG_BATTERY_CLEAN_IGNORE"
	NodeMsgDualDropFirstVol   = "REG_MSG_DUAL_DROP_FIRST_VOLUME"
	NodeCoilAluminumFoil      = "COIL_ALUMINUM_FOIL"
	NodeCoilDualDropMode      = "COIL_ELECTROLYTE_DUAL_DROP_MODE"
	NodeCoilDualDropSuction   = "COIL_DUAL_DROP_SUCTION_TIMING"
	NodeCoilDualDropStart     = "COIL_DUAL_DROP_START_TIMING"

	// Measurement registers read after each assembled cell.
	NodeDataOpenCircuitVoltage = "REG_DATA_OPEN_CIRCUIT_VOLTAGE"
	NodeDataPoleWeight         = "REG_DATA_POLE_WEIGHT"
	NodeDataAssemblyTime       = "REG_DATA_ASSEMBLY_PER_TIME"
	NodeDataAssemblyPressure   = "REG_DATA_ASSEMBLY_PRESSURE"
	NodeDataElectrolyteVolume  = "REG_DATA_ELECTROLYTE_VOLUME"
	NodeDataCoinNum            = "REG_DATA_COIN_NUM"
	NodeDataCoinCellCode       = "REG_DATA_COIN_CELL_CODE"
	NodeDataElectrolyteCode    = "REG_DATA_ELECTROLYTE_CODE"

	// Glove box environment.
	NodeDataGloveBoxPressure = "REG_DATA_GLOVE_BOX_PRESSURE"
	NodeDataGloveBoxO2       = "REG_DATA_GLOVE_BOX_O2_CONTENT"
	NodeDataGloveBoxWater    = "REG_DATA_GLOVE_BOX_WATER_CONTENT"

	// Axis positions.
	NodeDataAxisXPos = "REG_DATA_AXIS_X_POS"
	NodeDataAxisYPos = "REG_DATA_AXIS_Y_POS"
	NodeDataAxisZPos = "REG_DATA_AXIS_Z_POS"

	// HMI-side configuration bits checked before startup.
	NodeUnilabInteract = "REG_UNILAB_INTERACT"
	NodeGloveBoxIgnore = "COIL_GB_L_IGNORE_CMD"

	// Alarm bit.
	NodeWarning1 = "COIL_WARNING_1"
)

// barcodeRegisterCount is the span of the two scanner code registers.
const barcodeRegisterCount = 10
